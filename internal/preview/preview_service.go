package preview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/h2non/bimg"

	"lmsadmin/internal/domain"
	"lmsadmin/internal/storage"
)

func init() {
	if err := os.MkdirAll(tmpDir, 0777); err != nil {
		log.Printf("Warning: failed to create directory %s: %v", tmpDir, err)
	}
}

const (
	maxImageSize  = 1024            // максимальный размер превью в пикселях
	jpegQuality   = 85              // качество JPEG
	previewPrefix = "previews/"     // префикс для превью в хранилище
	tmpDir        = "/tmp/previews" // директория для временных файлов
)

// Service генерирует и кеширует JPEG-превью записей конференций:
// кадр из видео вытаскивает ffmpeg, картинку ужимает bimg.
type Service struct {
	store storage.Storage
}

func NewService(store storage.Storage) *Service {
	return &Service{store: store}
}

// GetOrGenerate возвращает превью записи. Сгенерированное превью
// кешируется в хранилище рядом с записью.
func (s *Service) GetOrGenerate(ctx context.Context, recording *domain.MeetingRecording, data []byte) ([]byte, error) {
	previewKey := previewPrefix + recording.UUID.String() + ".jpg"

	obj, err := s.store.GetObject(ctx, previewKey)
	if err == nil {
		log.Printf("[Preview] Найдено существующее превью: %s", previewKey)
		return storage.ReadAll(obj)
	}

	log.Printf("[Preview] Превью не найдено, генерируем новое для %s (тип: %s)",
		recording.UUID, recording.ContentType)

	var previewData []byte
	switch recording.ContentType {
	case "image/jpeg", "image/png", "image/gif":
		previewData, err = s.optimizeImage(data)
	case "video/mp4", "video/webm", "video/x-matroska", "":
		previewData, err = s.generateVideoPreview(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported content type: %s", recording.ContentType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate preview: %w", err)
	}

	if err := s.store.Upload(ctx, previewKey, previewData, "image/jpeg"); err != nil {
		// Превью уже сгенерировано, отдаем его даже без кеша
		log.Printf("[Preview] Предупреждение: не удалось сохранить превью: %v", err)
	}

	return previewData, nil
}

// optimizeImage оптимизирует изображение до нужного размера
func (s *Service) optimizeImage(data []byte) ([]byte, error) {
	image := bimg.NewImage(data)

	size, err := image.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to get image size: %w", err)
	}

	// Вычисляем новые размеры с сохранением пропорций
	width, height := calculateNewDimensions(size.Width, size.Height, maxImageSize)

	processed, err := image.Process(bimg.Options{
		Width:   width,
		Height:  height,
		Quality: jpegQuality,
		Type:    bimg.JPEG,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}

	return processed, nil
}

// calculateNewDimensions вычисляет новые размеры с сохранением пропорций
func calculateNewDimensions(width, height, maxSize int) (newWidth, newHeight int) {
	if width > height {
		newWidth = maxSize
		newHeight = (height * maxSize) / width
	} else {
		newHeight = maxSize
		newWidth = (width * maxSize) / height
	}
	return
}

func (s *Service) generateVideoPreview(data io.Reader) ([]byte, error) {
	tmpPath := filepath.Join(tmpDir, fmt.Sprintf("preview_%d", time.Now().UnixNano()))
	if err := os.MkdirAll(tmpPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpPath)

	// Сохраняем видео во временный файл
	videoPath := filepath.Join(tmpPath, "input.mp4")
	videoFile, err := os.Create(videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(videoFile, data); err != nil {
		videoFile.Close()
		return nil, fmt.Errorf("failed to save video data: %w", err)
	}
	videoFile.Close()

	duration, err := getVideoDuration(videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get video duration: %w", err)
	}

	previewTime := calculatePreviewTime(duration)
	outputPath := filepath.Join(tmpPath, "output.jpg")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", previewTime, // Позиция для кадра
		"-i", videoPath, // Входной файл
		"-vf", fmt.Sprintf("scale=%d:-1:force_original_aspect_ratio=decrease", maxImageSize),
		"-frames:v", "1", // Один кадр
		"-q:v", "2", // Качество JPEG
		"-f", "image2", // Формат - изображение
		"-y", // Перезаписать если существует
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to extract frame: %w (stderr: %s)", err, stderr.String())
	}

	imgData, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame image: %w", err)
	}

	return s.optimizeImage(imgData)
}

// getVideoDuration получает длительность видео
func getVideoDuration(videoPath string) (string, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath)

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get duration: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// calculatePreviewTime вычисляет время для кадра превью
func calculatePreviewTime(duration string) string {
	durationFloat, err := strconv.ParseFloat(duration, 64)
	if err != nil {
		return "00:00:01" // По умолчанию 1 секунда
	}

	if durationFloat <= 10 {
		return "00:00:01"
	}

	// Берем кадр на 10% от начала видео
	previewSeconds := durationFloat * 0.1
	hours := int(previewSeconds) / 3600
	minutes := (int(previewSeconds) % 3600) / 60
	seconds := int(previewSeconds) % 60

	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
