// Package main provides the scanrouter CLI.
//
// scanrouter OCRs a directory of scanned PDFs in parallel and files each one
// by an extracted asset ID or entity name.
//
// Usage:
//
//	scanrouter batch --src <dir> --dst <dir> [--mode asset|entity]
//	scanrouter diffocr <input.pdf> <output.pdf>
package main

func main() {
	Execute()
}
