package prompts

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/db/repository"
	"github.com/cozy-creator/sticker-server/internal/events"
	"github.com/cozy-creator/sticker-server/internal/utils/hashutil"
	"go.uber.org/zap"
)

const MaxFileSize = 5 << 20

var (
	ErrInvalidFileType = errors.New("only .txt prompt files are allowed")
	ErrInvalidEncoding = errors.New("prompt file must be UTF-8 encoded")
	ErrNoPrompts       = errors.New("no prompts found in file")
	ErrFileTooLarge    = errors.New("prompt file is too large")
)

// Service stores prompt files on disk and records them.
type Service struct {
	files        repository.IPromptsFileRepository
	generated    repository.IGeneratedPromptFileRepository
	promptsDir   string
	generatedDir string
	events       events.Publisher
	logger       *zap.Logger
	now          func() time.Time
}

func NewService(
	files repository.IPromptsFileRepository,
	generated repository.IGeneratedPromptFileRepository,
	promptsDir, generatedDir string,
	publisher events.Publisher,
	logger *zap.Logger,
) (*Service, error) {
	for _, dir := range []string{promptsDir, generatedDir} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create prompts directory: %w", err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		files:        files,
		generated:    generated,
		promptsDir:   promptsDir,
		generatedDir: generatedDir,
		events:       publisher,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Import validates an uploaded prompt list and stores it as a pending
// prompts file.
func (s *Service) Import(ctx context.Context, filename string, r io.Reader) (*models.PromptsFile, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if !strings.EqualFold(filepath.Ext(filename), ".txt") {
		return nil, ErrInvalidFileType
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	return s.Store(ctx, filename, data)
}

// Store saves already validated bytes into the prompts directory under a
// timestamp prefixed name and records a pending prompts file.
func (s *Service) Store(ctx context.Context, filename string, data []byte) (*models.PromptsFile, error) {
	prompts, err := ParsePrompts(data)
	if err != nil {
		return nil, err
	}

	path, err := createUnique(s.promptsDir, filename, s.now(), data)
	if err != nil {
		return nil, fmt.Errorf("failed to save prompt file: %w", err)
	}

	file, err := s.files.Create(ctx, &models.PromptsFile{
		Filename:    filename,
		SHA256:      hashutil.Sha256Hash(data),
		Path:        path,
		PromptCount: len(prompts),
		Status:      models.PromptsFileStatusPending,
		UploadedAt:  s.now().UTC(),
	})
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to record prompt file: %w", err)
	}

	s.logger.Info("stored prompts file", zap.Int64("prompts_file_id", file.ID), zap.Int("prompts", len(prompts)))
	s.events.Publish(events.TypePromptsFileCreated, events.Payload{
		"prompts_file_id": file.ID,
		"filename":        file.Filename,
		"prompt_count":    file.PromptCount,
	})

	return file, nil
}

// AddGenerated records the output of the prompt authoring step so it can be
// queued for promotion.
func (s *Service) AddGenerated(ctx context.Context, filename, userInput string, prompts []string) (*models.GeneratedPromptFile, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filepath.Ext(filename) == "" {
		filename += ".txt"
	}

	var buf bytes.Buffer
	count := 0
	for _, p := range prompts {
		if p = strings.TrimSpace(p); p != "" {
			buf.WriteString(p)
			buf.WriteByte('\n')
			count++
		}
	}
	if count == 0 {
		return nil, ErrNoPrompts
	}

	path, err := createUnique(s.generatedDir, filename, s.now(), buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to save generated prompt file: %w", err)
	}

	file, err := s.generated.Create(ctx, &models.GeneratedPromptFile{
		Filename:    filename,
		Path:        path,
		UserInput:   userInput,
		PromptCount: count,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	return file, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.PromptsFile, error) {
	return s.files.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.PromptsFile, error) {
	return s.files.List(ctx)
}

func (s *Service) ListGenerated(ctx context.Context) ([]models.GeneratedPromptFile, error) {
	return s.generated.List(ctx)
}

// ReadPrompts loads the prompt list of a stored file.
func ReadPrompts(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParsePrompts(data)
}

// ParsePrompts returns the trimmed non-blank lines of a UTF-8 prompt list.
func ParsePrompts(data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}

	var prompts []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), MaxFileSize)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(prompts) == 0 {
		return nil, ErrNoPrompts
	}

	return prompts, nil
}

// createUnique writes data to <dir>/<unix>_<name>, adding a counter when a
// file with that name already exists.
func createUnique(dir, name string, now time.Time, data []byte) (string, error) {
	for n := 0; n < 1000; n++ {
		prefix := fmt.Sprintf("%d", now.Unix())
		if n > 0 {
			prefix = fmt.Sprintf("%d-%d", now.Unix(), n)
		}

		path := filepath.Join(dir, prefix+"_"+name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", err
		}

		return path, f.Close()
	}

	return "", fmt.Errorf("could not find a free name for %s", name)
}
