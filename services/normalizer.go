package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"audioembed/types"
)

// Normalizer turns an item's raw bytes into canonical decoded audio
type Normalizer struct {
	scratch    *Scratch
	transcoder Transcoder
}

// NewNormalizer creates a normalizer writing its working files under scratch
func NewNormalizer(scratch *Scratch, transcoder Transcoder) *Normalizer {
	return &Normalizer{scratch: scratch, transcoder: transcoder}
}

// Normalize classifies item and fills item.Canonical. Canonical input is
// passed through untouched; compressed input goes through the transcoder.
func (n *Normalizer) Normalize(ctx context.Context, item *types.AudioItem) error {
	format, err := ClassifyFormat(item)
	if err != nil {
		return err
	}
	item.Format = format

	if format.IsCanonical() {
		item.Canonical = item.Raw
		return nil
	}
	return n.transcode(ctx, item)
}

func (n *Normalizer) transcode(ctx context.Context, item *types.AudioItem) (err error) {
	if err := ctx.Err(); err != nil {
		return itemError(types.KindTranscode, item, err)
	}

	id, err := n.scratch.Allocate()
	if err != nil {
		return itemError(types.KindResource, item, err)
	}
	item.ScratchID = id
	defer func() {
		if rerr := n.scratch.Release(id); rerr != nil {
			log.Printf("Failed to release scratch files for %s: %v", item.Key, rerr)
			if err == nil {
				err = itemError(types.KindResource, item, rerr)
			}
		}
	}()

	job := types.TranscodeJob{
		Index:      item.Index,
		InputPath:  n.scratch.PathFor(id, string(item.Format)),
		OutputPath: n.scratch.PathFor(id, "out."+string(types.CanonicalFormat)),
		Target:     types.CanonicalFormat,
	}

	if err := os.WriteFile(job.InputPath, item.Raw, 0o600); err != nil {
		return itemError(types.KindResource, item, fmt.Errorf("write scratch input: %w", err))
	}

	if err := n.transcoder.Transcode(ctx, job); err != nil {
		return itemError(types.KindTranscode, item, err)
	}

	data, err := os.ReadFile(job.OutputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return itemError(types.KindTranscode, item, errors.New("transcoder produced no output"))
		}
		return itemError(types.KindResource, item, fmt.Errorf("read scratch output: %w", err))
	}
	if len(data) == 0 {
		return itemError(types.KindTranscode, item, errors.New("transcoder produced empty output"))
	}

	item.Canonical = data
	return nil
}

// itemError attaches item identity to err. If err already carries a kind, that kind is kept.
func itemError(kind types.ErrorKind, item *types.AudioItem, err error) error {
	var e *types.Error
	if errors.As(err, &e) {
		kind = e.Kind
		err = e.Err
	}
	return types.NewError(kind, item.Index, item.Key, err)
}
