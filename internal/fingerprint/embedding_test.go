package fingerprint

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbeddingClient_EmbedImage(t *testing.T) {
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/image" {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		_, _ = io.ReadAll(file)
		gotType = header.Header.Get("Content-Type")
		w.Write([]byte(`{"dim":3,"embedding":[0.1,0.2,0.3],"model":"clip"}`))
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL + "/")
	jpegHeader := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0, 0, 0}
	emb, err := client.EmbedImage(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("EmbedImage failed: %v", err)
	}
	if len(emb) != 3 || emb[2] != 0.3 {
		t.Errorf("unexpected embedding %v", emb)
	}
	if gotType != "image/jpeg" {
		t.Errorf("part Content-Type = %q; want image/jpeg", gotType)
	}
}

func TestEmbeddingClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "boom", nil},
		{"empty embedding", http.StatusOK, `{"dim":0,"embedding":[]}`, ErrEmptyEmbedding},
		{"bad json", http.StatusOK, `{`, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewEmbeddingClient(srv.URL).EmbedImage(context.Background(), []byte("data"))
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestEmbeddingClient_DetectFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"faces_count":1,"faces":[{"face_index":0,"dim":2,"embedding":[1,0],"bbox":[10,20,110,140],"det_score":0.97}],"model":"arcface"}`))
	}))
	defer srv.Close()

	resp, err := NewEmbeddingClient(srv.URL).DetectFaces(context.Background(), []byte("data"))
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}
	if resp.FacesCount != 1 || len(resp.Faces) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	f := resp.Faces[0]
	if f.DetScore != 0.97 || len(f.BBox) != 4 || f.BBox[2] != 110 {
		t.Errorf("unexpected face %+v", f)
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"gif", []byte("GIF89a\x00\x00"), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBP"), "image/webp"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"unknown", []byte("hello world"), "application/octet-stream"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectMIMEType(tc.data); got != tc.want {
				t.Errorf("detectMIMEType = %q; want %q", got, tc.want)
			}
		})
	}
}
