// Package drive provides the remote tree provider client.
//
// The engine only needs two calls from the provider: list the children
// of a folder (with pagination) and fetch one node's metadata. Both are
// expressed by the Client interface so tests and alternative providers
// can supply their own implementation; the HTTP implementation talks to
// the Google Drive v3 REST API with an already-acquired bearer token.
// Credential acquisition is the caller's problem.
package drive

import "context"

// Item is one remote file-system entry as reported by the provider.
type Item struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	MimeType      string   `json:"mimeType"`
	Size          int64    `json:"size,string,omitempty"`
	ModifiedTime  string   `json:"modifiedTime,omitempty"` // RFC 3339
	WebViewLink   string   `json:"webViewLink,omitempty"`
	ThumbnailLink string   `json:"thumbnailLink,omitempty"`
	Parents       []string `json:"parents,omitempty"`
}

// IsFolder reports whether the item is a folder.
func (it *Item) IsFolder() bool {
	return it.MimeType == "application/vnd.google-apps.folder"
}

// Page is one page of a folder's children. NextPageToken is empty on
// the final page.
type Page struct {
	Items         []Item `json:"files"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// Client enumerates a remote file tree.
type Client interface {
	// ListChildren returns one page of the direct children of folderID.
	// Pass the previous page's NextPageToken to continue; pass "" for
	// the first page.
	ListChildren(ctx context.Context, folderID, pageToken string) (*Page, error)

	// GetNode fetches the metadata of a single remote entry.
	GetNode(ctx context.Context, id string) (*Item, error)
}
