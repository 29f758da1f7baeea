package grader

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	gateway "github.com/mathfe/grader/apigateway"
	"github.com/mathfe/grader/apperr"
	"github.com/mathfe/grader/grading"
	"github.com/mathfe/grader/pdfdoc"
	"github.com/mathfe/grader/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const pageCountWorkers = 4

// FileView is a file as listed to the client.
type FileView struct {
	store.File
	Size          string     `json:"size"`
	StudentNumber string     `json:"student_number,omitempty"`
	Completed     bool       `json:"completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Upload replaces the session's scripts with the uploaded PDFs. Files keep
// their upload order as 0-based indexes and student numbers are taken from
// their names when present.
func (s *Service) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, "expected multipart form with field \"files\"")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return apperr.WithFields(apperr.ErrValidation, map[string]any{"files": "at least one PDF is required"})
	}
	if len(headers) > s.Limits.MaxFiles {
		return apperr.WithFields(apperr.ErrValidation, map[string]any{
			"files": fmt.Sprintf("at most %d files per upload", s.Limits.MaxFiles),
		})
	}
	var total int64
	for _, h := range headers {
		total += h.Size
	}
	if total > s.Limits.UploadBytes {
		return apperr.WithFields(apperr.ErrValidation, map[string]any{
			"files": fmt.Sprintf("upload is %s, limit is %s", humanize.IBytes(uint64(total)), s.Limits),
		})
	}

	files, err := readUploads(c.UserContext(), headers)
	if err != nil {
		return err
	}
	studentNums := make(map[int]string, len(files))
	for _, f := range files {
		studentNums[f.Idx] = grading.ExtractStudentNumber(f.Name)
	}

	sid := sessionID(c)
	if err := s.Store.ReplaceFiles(c.UserContext(), sid, files, studentNums); err != nil {
		return err
	}
	uploadedFiles.Add(float64(len(files)))
	uploadedBytes.Add(float64(total))
	s.Logger.WithFields(gateway.LogFields(c)).WithFields(logrus.Fields{
		"files": len(files),
		"size":  humanize.IBytes(uint64(total)),
	}).Info("scripts uploaded")

	return s.ListFiles(c)
}

// readUploads loads every part and validates it as a PDF, counting pages in
// parallel.
func readUploads(ctx context.Context, headers []*multipart.FileHeader) ([]store.File, error) {
	now := time.Now().UTC()
	files := make([]store.File, len(headers))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(pageCountWorkers)
	for i, h := range headers {
		i, h := i, h
		g.Go(func() error {
			content, err := readPart(h)
			if err != nil {
				return err
			}
			pages, err := pdfdoc.PageCount(content)
			if err != nil {
				if e, ok := apperr.As(err); ok {
					return apperr.WithFields(e, map[string]any{"file": h.Filename})
				}
				return err
			}
			files[i] = store.File{
				Idx:        i,
				Name:       h.Filename,
				UploadedAt: now,
				PageCount:  pages,
				SizeBytes:  int64(len(content)),
				Content:    content,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func readPart(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrBadRequest, "open upload "+h.Filename)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrBadRequest, "read upload "+h.Filename)
	}
	return content, nil
}

func (s *Service) fileViews(ctx context.Context, sid string) ([]FileView, error) {
	files, err := s.Store.ListFiles(ctx, sid)
	if err != nil {
		return nil, err
	}
	nums, err := s.Store.StudentNumbers(ctx, sid)
	if err != nil {
		return nil, err
	}
	done, err := s.Store.Completed(ctx, sid)
	if err != nil {
		return nil, err
	}
	out := make([]FileView, 0, len(files))
	for _, f := range files {
		v := FileView{File: f, Size: humanize.IBytes(uint64(f.SizeBytes)), StudentNumber: nums[f.Idx]}
		if at, ok := done[f.Idx]; ok {
			at := at
			v.Completed, v.CompletedAt = true, &at
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) ListFiles(c *fiber.Ctx) error {
	views, err := s.fileViews(c.UserContext(), sessionID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"files": views})
}

func (s *Service) GetFile(c *fiber.Ctx) error {
	idx, err := intParam(c, "file")
	if err != nil {
		return err
	}
	views, err := s.fileViews(c.UserContext(), sessionID(c))
	if err != nil {
		return err
	}
	for _, v := range views {
		if v.Idx == idx {
			return c.Status(fiber.StatusOK).JSON(v)
		}
	}
	return apperr.WithMessage(apperr.ErrNotFound, fmt.Sprintf("file %d not found", idx))
}

// FilePDF streams the uploaded script back.
func (s *Service) FilePDF(c *fiber.Ctx) error {
	idx, err := intParam(c, "file")
	if err != nil {
		return err
	}
	f, err := s.Store.GetFile(c.UserContext(), sessionID(c), idx)
	if err != nil {
		return err
	}
	return sendPDF(c, f.Name, f.Content, false)
}

// FilePage returns one 0-based page of a script as its own PDF.
func (s *Service) FilePage(c *fiber.Ctx) error {
	idx, err := intParam(c, "file")
	if err != nil {
		return err
	}
	page, err := intParam(c, "page")
	if err != nil {
		return err
	}
	f, err := s.Store.GetFile(c.UserContext(), sessionID(c), idx)
	if err != nil {
		return err
	}
	body, err := pdfdoc.Page(f.Content, page, f.PageCount)
	if err != nil {
		return err
	}
	return sendPDF(c, fmt.Sprintf("page-%d.pdf", page), body, false)
}
