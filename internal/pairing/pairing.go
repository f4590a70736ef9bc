// Package pairing matches raw uploaded files into logical product units.
// Pairing is a pure function of the input list and its order: the same
// files in the same order always produce the same pairs, unmatched files,
// and diagnostics.
package pairing

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/danielgmorais/bulkbridge/internal/model"
)

var imageExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

var videoExtensions = map[string]bool{
	"mp4":  true,
	"mov":  true,
	"webm": true,
	"avi":  true,
	"mkv":  true,
}

// Result is the pairing engine's output. Every input file ends up in
// exactly one of Pairs or Unmatched.
type Result struct {
	Pairs     []model.FilePair
	Unmatched []model.RawFile
	Errors    []string
}

// BaseName returns the filename without its last extension.
func BaseName(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx == -1 {
		return filename
	}
	return filename[:idx]
}

// Extension returns the lower-cased extension without the dot.
func Extension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx == -1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// IsImageFile reports whether the filename carries an image extension.
func IsImageFile(filename string) bool {
	return imageExtensions[Extension(filename)]
}

// IsMediaFile reports whether the filename is an image or a video.
func IsMediaFile(filename string) bool {
	ext := Extension(filename)
	return imageExtensions[ext] || videoExtensions[ext]
}

type fileGroup struct {
	baseName  string
	images    []model.RawFile
	downloads []model.RawFile
}

// Pair groups files into product units according to the policy's mode.
func Pair(files []model.RawFile, policy model.CategoryPolicy) Result {
	if policy.Mode == model.ModeSingleFile {
		return pairSingle(files)
	}
	return pairGrouped(files)
}

func pairGrouped(files []model.RawFile) Result {
	var res Result
	// Keep an explicit order slice so diagnostics follow first-occurrence
	// order of base names rather than map iteration order.
	groups := make(map[string]*fileGroup)
	var order []string
	for _, f := range files {
		base := BaseName(f.Name)
		g, ok := groups[base]
		if !ok {
			g = &fileGroup{baseName: base}
			groups[base] = g
			order = append(order, base)
		}
		if IsImageFile(f.Name) {
			g.images = append(g.images, f)
		} else {
			g.downloads = append(g.downloads, f)
		}
	}

	for _, base := range order {
		g := groups[base]
		switch {
		case len(g.images) == 0:
			res.Unmatched = append(res.Unmatched, g.downloads...)
			res.Errors = append(res.Errors, fmt.Sprintf("No image file found for %q", base))
		case len(g.downloads) == 0:
			res.Unmatched = append(res.Unmatched, g.images...)
			res.Errors = append(res.Errors, fmt.Sprintf("No download file found for %q", base))
		case len(g.images) > 1:
			res.Unmatched = append(res.Unmatched, g.images...)
			res.Unmatched = append(res.Unmatched, g.downloads...)
			res.Errors = append(res.Errors, fmt.Sprintf("Multiple image files found for %q", base))
		case len(g.downloads) > 1:
			res.Unmatched = append(res.Unmatched, g.downloads...)
			res.Unmatched = append(res.Unmatched, g.images...)
			res.Errors = append(res.Errors, fmt.Sprintf("Multiple download files found for %q", base))
		default:
			res.Pairs = append(res.Pairs, model.FilePair{
				ID:       uuid.NewString(),
				BaseName: base,
				ImageFile: model.AssetRef{
					Name:        g.images[0].Name,
					Size:        g.images[0].Size,
					ContentType: g.images[0].ContentType,
					Data:        g.images[0].Data,
				},
				DownloadFile: &model.AssetRef{
					Name:        g.downloads[0].Name,
					Size:        g.downloads[0].Size,
					ContentType: g.downloads[0].ContentType,
					Data:        g.downloads[0].Data,
				},
			})
		}
	}
	return res
}

func pairSingle(files []model.RawFile) Result {
	var res Result
	for _, f := range files {
		if !IsMediaFile(f.Name) {
			res.Unmatched = append(res.Unmatched, f)
			res.Errors = append(res.Errors, fmt.Sprintf("File %q is not an image or video", f.Name))
			continue
		}
		res.Pairs = append(res.Pairs, model.FilePair{
			ID:       uuid.NewString(),
			BaseName: BaseName(f.Name),
			ImageFile: model.AssetRef{
				Name:        f.Name,
				Size:        f.Size,
				ContentType: f.ContentType,
				Data:        f.Data,
			},
		})
	}
	return res
}

// Validate applies batch-level acceptance rules. A batch with any unmatched
// file is rejected entirely rather than silently dropping the dangler.
func Validate(pairs []model.FilePair, unmatched []model.RawFile, policy model.CategoryPolicy) error {
	if len(pairs) == 0 {
		return fmt.Errorf("no file pairs found")
	}
	max := policy.MaxUnits
	if max <= 0 {
		max = DefaultMaxUnits
	}
	if len(pairs) > max {
		return fmt.Errorf("too many products: maximum is %d, found %d", max, len(pairs))
	}
	if len(unmatched) > 0 {
		return fmt.Errorf("%d file(s) could not be matched", len(unmatched))
	}
	for _, p := range pairs {
		switch policy.Mode {
		case model.ModeSingleFile:
			if p.DownloadFile != nil {
				return fmt.Errorf("pair %q has a download file in single-file mode", p.BaseName)
			}
		default:
			if p.DownloadFile == nil {
				return fmt.Errorf("pair %q is missing a download file", p.BaseName)
			}
		}
	}
	return nil
}

// DefaultMaxUnits caps a batch when the policy does not set its own limit.
const DefaultMaxUnits = 100
