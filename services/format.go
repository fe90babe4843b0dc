package services

import (
	"bytes"
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"audioembed/types"

	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
)

var extensionFormats = map[string]types.Format{
	".wav":  types.FormatWAV,
	".wave": types.FormatWAV,
	".mp3":  types.FormatMP3,
	".flac": types.FormatFLAC,
	".ogg":  types.FormatOGG,
	".oga":  types.FormatOGG,
	".m4a":  types.FormatM4A,
}

var mimeFormats = map[string]types.Format{
	"audio/wav":       types.FormatWAV,
	"audio/x-wav":     types.FormatWAV,
	"audio/wave":      types.FormatWAV,
	"audio/vnd.wave":  types.FormatWAV,
	"audio/mpeg":      types.FormatMP3,
	"audio/mp3":       types.FormatMP3,
	"audio/flac":      types.FormatFLAC,
	"audio/x-flac":    types.FormatFLAC,
	"audio/ogg":       types.FormatOGG,
	"application/ogg": types.FormatOGG,
	"audio/mp4":       types.FormatM4A,
	"audio/x-m4a":     types.FormatM4A,
}

var tagFormats = map[tag.FileType]types.Format{
	tag.MP3:  types.FormatMP3,
	tag.FLAC: types.FormatFLAC,
	tag.OGG:  types.FormatOGG,
	tag.M4A:  types.FormatM4A,
	tag.ALAC: types.FormatM4A,
}

// ClassifyFormat decides an item's format. A recognised extension on the key
// wins; an unrecognised one is rejected outright. Keys without an extension
// fall back to the declared content type and then to sniffing the bytes.
func ClassifyFormat(item *types.AudioItem) (types.Format, error) {
	if ext := keyExtension(item.Key); ext != "" {
		if f, ok := extensionFormats[ext]; ok {
			return f, nil
		}
		return types.FormatUnknown, unsupported(item, fmt.Sprintf("extension %q", ext))
	}

	if f, ok := declaredFormat(item.DeclaredType); ok {
		return f, nil
	}

	if f, ok := sniffFormat(item.Raw); ok {
		return f, nil
	}

	return types.FormatUnknown, unsupported(item, fmt.Sprintf("content type %q", mimetype.Detect(item.Raw).String()))
}

func unsupported(item *types.AudioItem, what string) error {
	return types.NewError(types.KindUnsupportedFormat, item.Index, item.Key,
		fmt.Errorf("%s is not one of wav, mp3, flac, ogg, m4a", what))
}

// keyExtension returns the lower-cased extension of a filename or URL path
func keyExtension(key string) string {
	p := key
	if u, err := url.Parse(key); err == nil && u.Scheme != "" && u.Host != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(filepath.ToSlash(p)))
}

func declaredFormat(contentType string) (types.Format, bool) {
	if contentType == "" {
		return types.FormatUnknown, false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return types.FormatUnknown, false
	}
	f, ok := mimeFormats[strings.ToLower(mediaType)]
	return f, ok
}

func sniffFormat(raw []byte) (types.Format, bool) {
	if len(raw) == 0 {
		return types.FormatUnknown, false
	}
	for m := mimetype.Detect(raw); m != nil; m = m.Parent() {
		if f, ok := mimeFormats[m.String()]; ok {
			return f, true
		}
	}
	// tag recognises tagged containers that mimetype reports as octet-stream
	if _, fileType, err := tag.Identify(bytes.NewReader(raw)); err == nil {
		if f, ok := tagFormats[fileType]; ok {
			return f, true
		}
	}
	return types.FormatUnknown, false
}
