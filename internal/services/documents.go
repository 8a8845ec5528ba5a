package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"study-ai/internal/models"
)

var (
	ErrUnsupportedDocument = errors.New("only PDF documents are supported")
	ErrDocumentNotFound    = errors.New("document not found")
)

// DocumentService stores uploaded PDFs and keeps their extracted text for use as
// generation context.
type DocumentService struct {
	db        *sql.DB
	pdf       *PDFService
	uploadDir string
}

func NewDocumentService(db *sql.DB, pdf *PDFService, uploadDir string) *DocumentService {
	return &DocumentService{db: db, pdf: pdf, uploadDir: uploadDir}
}

func (s *DocumentService) Create(ctx context.Context, original string, src io.Reader) (*models.Document, error) {
	if !strings.EqualFold(filepath.Ext(original), ".pdf") {
		return nil, ErrUnsupportedDocument
	}
	body, ok, err := sniffPDF(src)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnsupportedDocument
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure upload dir: %w", err)
	}

	storedPath := filepath.Join(s.uploadDir, uuid.NewString()+".pdf")
	if err := writeFile(storedPath, body); err != nil {
		return nil, err
	}

	text, pages, err := s.pdf.ExtractText(storedPath)
	if err != nil {
		_ = os.Remove(storedPath)
		return nil, fmt.Errorf("extract text: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (original_name, stored_path, page_count, text, uploaded_at)
		VALUES (?, ?, ?, ?, ?);
	`, original, storedPath, pages, text, now)
	if err != nil {
		_ = os.Remove(storedPath)
		return nil, fmt.Errorf("insert document: %w", err)
	}
	id, _ := res.LastInsertId()

	return &models.Document{
		ID:           id,
		OriginalName: original,
		StoredPath:   storedPath,
		PageCount:    pages,
		Text:         text,
		UploadedAt:   now,
	}, nil
}

func writeFile(path string, src io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

func (s *DocumentService) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, original_name, stored_path, page_count, text, uploaded_at
		FROM documents WHERE id = ?;
	`, id)
	var doc models.Document
	if err := row.Scan(
		&doc.ID,
		&doc.OriginalName,
		&doc.StoredPath,
		&doc.PageCount,
		&doc.Text,
		&doc.UploadedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}
