package usecase

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	MaxPhotos    = 3
	MaxPhotoSize = 5 * 1024 * 1024
)

var allowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// PhotoFile is one buffered upload.
type PhotoFile struct {
	ID          string
	Name        string
	ContentType string
	Data        []byte
}

func (f *PhotoFile) Size() int64 { return int64(len(f.Data)) }

// DataURL encodes the file the way browsers do for <img src>.
func (f *PhotoFile) DataURL() string {
	return "data:" + strings.ToLower(f.ContentType) + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// PhotoIntake buffers validated uploads until a listing is published.
type PhotoIntake struct {
	mu    sync.Mutex
	files []*PhotoFile
}

func NewPhotoIntake() *PhotoIntake {
	return &PhotoIntake{}
}

func checkPhoto(f *PhotoFile, buffered int) error {
	if !allowedPhotoTypes[strings.ToLower(strings.TrimSpace(f.ContentType))] {
		return &domain.UploadRejectedError{File: f.Name, Reason: domain.RejectType}
	}
	if f.Size() > MaxPhotoSize {
		return &domain.UploadRejectedError{File: f.Name, Reason: domain.RejectSize}
	}
	if buffered >= MaxPhotos {
		return &domain.UploadRejectedError{File: f.Name, Reason: domain.RejectCapacity}
	}
	return nil
}

// Add validates and buffers one file. The file is assigned an id.
func (in *PhotoIntake) Add(f PhotoFile) (*PhotoFile, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := checkPhoto(&f, len(in.files)); err != nil {
		return nil, err
	}
	f.ID = uuid.NewString()
	in.files = append(in.files, &f)
	return &f, nil
}

// AddBatch adds files in order, keeping accepted ones and reporting every
// rejection.
func (in *PhotoIntake) AddBatch(files []PhotoFile) ([]*PhotoFile, []*domain.UploadRejectedError) {
	var (
		accepted []*PhotoFile
		rejected []*domain.UploadRejectedError
	)
	for _, f := range files {
		added, err := in.Add(f)
		if err != nil {
			rejected = append(rejected, err.(*domain.UploadRejectedError))
			continue
		}
		accepted = append(accepted, added)
	}
	return accepted, rejected
}

// Remove drops the file at index. Out-of-range indexes are ignored.
func (in *PhotoIntake) Remove(index int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if index < 0 || index >= len(in.files) {
		return
	}
	in.files = append(in.files[:index], in.files[index+1:]...)
}

func (in *PhotoIntake) Clear() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.files = nil
}

func (in *PhotoIntake) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.files)
}

func (in *PhotoIntake) Files() []*PhotoFile {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]*PhotoFile(nil), in.files...)
}

// Encode converts every buffered file to a data URL, one goroutine per
// file. Each task owns its slot, and the batch is returned only after all
// of them finish.
func (in *PhotoIntake) Encode(ctx context.Context) ([]string, error) {
	return in.encodeFiles(ctx, in.Files())
}

func (in *PhotoIntake) encodeFiles(ctx context.Context, files []*PhotoFile) ([]string, error) {
	out := make([]string, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = f.DataURL()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Previews returns the encoded files keyed by file id.
func (in *PhotoIntake) Previews(ctx context.Context) (map[string]string, error) {
	files := in.Files()
	encoded, err := in.encodeFiles(ctx, files)
	if err != nil {
		return nil, err
	}
	previews := make(map[string]string, len(files))
	for i, f := range files {
		previews[f.ID] = encoded[i]
	}
	return previews, nil
}
