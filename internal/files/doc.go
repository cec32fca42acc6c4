// Package files locates measurement workbooks on disk.
//
// Discovery lists the .xlsx workbooks of a directory in name order, skipping
// subdirectories and the ~$ lock files Excel leaves next to open workbooks.
// Relative directories resolve against the base path given to NewDiscovery.
//
//	discovery := files.NewDiscovery("data")
//	workbooks, err := discovery.FindWorkbooks("2024")
package files
