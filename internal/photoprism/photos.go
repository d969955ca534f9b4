package photoprism

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/kozaktomas/photo-grouper/internal/database"
)

// GetPhotoDetails returns the raw photo details including its files.
func (pp *PhotoPrism) GetPhotoDetails(ctx context.Context, photoUID string) (map[string]any, error) {
	result, err := doGetJSON[map[string]any](ctx, pp, "photos/"+url.PathEscape(photoUID))
	if err != nil {
		return nil, err
	}
	return *result, nil
}

func mapString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// findPrimaryFile finds the primary file map from the Files array in photo details.
func findPrimaryFile(files []any) map[string]any {
	for _, f := range files {
		file, ok := f.(map[string]any)
		if !ok {
			continue
		}
		if mapBool(file, "Primary") {
			return file
		}
	}
	if first, ok := files[0].(map[string]any); ok {
		return first
	}
	return nil
}

// findPrimaryFileHash extracts the hash of the primary file from photo details.
func findPrimaryFileHash(details map[string]any) string {
	files, ok := details["Files"].([]any)
	if !ok || len(files) == 0 {
		return ""
	}
	primaryFile := findPrimaryFile(files)
	if primaryFile == nil {
		return ""
	}
	return mapString(primaryFile, "Hash")
}

// GetPhotoDownload downloads the primary file of a photo. Face boxes are
// relative to the primary file, so no other file may be used.
func (pp *PhotoPrism) GetPhotoDownload(ctx context.Context, photoUID string) ([]byte, string, error) {
	details, err := pp.GetPhotoDetails(ctx, photoUID)
	if err != nil {
		return nil, "", fmt.Errorf("could not get photo details: %w", err)
	}

	fileHash := findPrimaryFileHash(details)
	if fileHash == "" {
		return nil, "", errors.New("could not find file hash for photo")
	}
	return pp.GetFileDownload(ctx, fileHash)
}

// GetFileDownload downloads a file by hash via /api/v1/dl/{hash}, which
// authenticates with the download token in the URL.
func (pp *PhotoPrism) GetFileDownload(ctx context.Context, fileHash string) ([]byte, string, error) {
	dl := pp.parsedURL.JoinPath("dl", fileHash)
	dl.RawQuery = url.Values{"t": {pp.downloadToken}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dl.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("could not create request: %w", err)
	}

	resp, err := pp.client.Do(req) //nolint:gosec // URL constructed from validated parsedURL
	if err != nil {
		return nil, "", fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("could not read response body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Loader downloads originals through the API. It satisfies analysis.ImageLoader.
type Loader struct {
	Client *PhotoPrism
}

func (l Loader) LoadImage(ctx context.Context, photo *database.Photo) ([]byte, error) {
	data, _, err := l.Client.GetPhotoDownload(ctx, photo.UID)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", photo.UID, err)
	}
	return data, nil
}
