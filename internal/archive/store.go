package archive

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store keeps voice replies in S3 next to the delivery they answer.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: strings.TrimSpace(bucket), s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Voice is one downloaded voice note.
type Voice struct {
	RecordID   string
	MessageID  string
	MIMEType   string
	Data       []byte
	ReceivedAt time.Time
}

// ArchiveVoice uploads the note under replies/<record-id>/<message-id>.<ext>
// and returns the key. It returns "" without error when archival is disabled.
func (s *Store) ArchiveVoice(ctx context.Context, v Voice) (string, error) {
	if !s.Enabled() || len(v.Data) == 0 {
		return "", nil
	}

	key := VoiceKey(v.RecordID, v.MessageID, v.MIMEType)
	contentType := v.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	receivedAt := v.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(v.Data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"record-id":   v.RecordID,
			"received-at": receivedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived voice reply to S3", "record_id", v.RecordID, "s3_key", key, "bytes", len(v.Data))
	return key, nil
}

// VoiceKey builds the object key for a voice note.
func VoiceKey(recordID, messageID, mimeType string) string {
	return path.Join("replies", safeSegment(recordID), safeSegment(messageID)+extensionFor(mimeType))
}

func extensionFor(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.TrimSpace(strings.ToLower(base))
	switch base {
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/aac":
		return ".m4a"
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}
