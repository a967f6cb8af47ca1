package reconcile

import (
	"fmt"
	"regexp"
	"strings"
)

var quotedName = regexp.MustCompile(`^['"](.+)['"]$`)

// ParseMapping parses a folder-to-media mapping string of the form
//
//	'folder name': 'file name.mp4'
//
// Both names must be quoted (single or double quotes). The first
// colon outside the folder name separates the two parts.
func ParseMapping(mapping string) (folderName, fileName string, err error) {
	colon := strings.Index(mapping, ":")
	if colon < 0 {
		return "", "", fmt.Errorf("mapping must be in format: 'folder name': 'file name.mp4'")
	}

	folderPart := strings.TrimSpace(mapping[:colon])
	filePart := strings.TrimSpace(mapping[colon+1:])

	m := quotedName.FindStringSubmatch(folderPart)
	if m == nil {
		return "", "", fmt.Errorf("folder name must be quoted")
	}
	folderName = m[1]

	m = quotedName.FindStringSubmatch(filePart)
	if m == nil {
		return "", "", fmt.Errorf("file name must be quoted")
	}
	fileName = m[1]

	return folderName, fileName, nil
}
