package genealogy

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// mediaFormats maps accepted upload extensions to the FORM value stored in
// the OBJE record.
var mediaFormats = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
	".gif":  "gif",
	".webp": "webp",
	".bmp":  "bmp",
	".tif":  "tiff",
	".tiff": "tiff",
	".pdf":  "pdf",
}

// UploadMediaRequest carries one media upload.
type UploadMediaRequest struct {
	TreeID      int64
	Filename    string
	ContentType string
	Data        []byte
	Title       string
	Author      uuid.UUID
}

// UploadMedia stores the file in object storage and creates the OBJE record
// pointing at it. On a failed record write the stored object is removed
// again.
func (s *Service) UploadMedia(ctx context.Context, req UploadMediaRequest) (*record.Record, error) {
	if _, err := s.writableTree(ctx, req.TreeID); err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "file is empty")
	}
	if int64(len(req.Data)) > maxMediaBytes {
		return nil, errors.Newf(errors.ErrCodeMediaTooLarge, "file exceeds %d bytes", int64(maxMediaBytes))
	}
	ext := strings.ToLower(path.Ext(req.Filename))
	form, ok := mediaFormats[ext]
	if !ok {
		return nil, errors.New(errors.ErrCodeMediaTypeInvalid, "unsupported media type").WithDetail(req.Filename)
	}

	key := fmt.Sprintf("%d/%s%s", req.TreeID, uuid.NewString(), ext)
	if err := s.media.Put(ctx, key, req.ContentType, req.Data); err != nil {
		return nil, err
	}

	xref, err := s.records.NextXref(ctx, req.TreeID, gedcom.RecordMedia)
	if err != nil {
		s.discardObject(ctx, key)
		return nil, err
	}

	rec := gedcom.NewRecord(xref, gedcom.RecordMedia)
	file := rec.AddChild("FILE", key)
	file.AddChild("FORM", form)
	if req.Title != "" {
		file.AddChild("TITL", req.Title)
	}

	row, err := record.FromGedcom(req.TreeID, rec)
	if err != nil {
		s.discardObject(ctx, key)
		return nil, err
	}
	row.UpdatedBy = req.Author

	err = s.records.WithTx(ctx, func(tx record.RecordRepository) error {
		if err := tx.Create(ctx, row); err != nil {
			return err
		}
		return tx.AddChange(ctx, &record.Change{
			TreeID:    req.TreeID,
			Xref:      row.Xref,
			NewGedcom: row.Gedcom,
			Author:    req.Author,
		})
	})
	if err != nil {
		s.discardObject(ctx, key)
		return nil, err
	}

	s.log.Info("media uploaded",
		logging.Int64("tree_id", req.TreeID),
		logging.String("xref", row.Xref),
		logging.String("key", key),
		logging.Int("bytes", len(req.Data)))
	return row, nil
}

// MediaContent fetches the stored bytes behind an OBJE record.
func (s *Service) MediaContent(ctx context.Context, treeID int64, xref string) ([]byte, string, error) {
	row, err := s.records.Get(ctx, treeID, xref)
	if err != nil {
		return nil, "", err
	}
	if row.Type != gedcom.RecordMedia {
		return nil, "", errors.New(errors.ErrCodeRecordTypeInvalid, "record is not a media object").WithDetail(string(row.Type))
	}
	if row.ObjectKey == "" {
		return nil, "", errors.New(errors.ErrCodeMediaNotFound, "record has no stored file")
	}
	return s.media.Get(ctx, row.ObjectKey)
}

// managedMediaKey reports whether the object key was written by UploadMedia
// for this tree. Keys imported from GEDCOM FILE values stay untouched.
func managedMediaKey(treeID int64, key string) bool {
	return key != "" && strings.HasPrefix(key, fmt.Sprintf("%d/", treeID))
}

func (s *Service) discardObject(ctx context.Context, key string) {
	if err := s.media.Delete(ctx, key); err != nil {
		s.log.Warn("orphaned media object not removed", logging.String("key", key), logging.Err(err))
	}
}
