package shortener

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/mpolivanov/lavagate/app/models"
	"github.com/mpolivanov/lavagate/app/repository"
	"github.com/mpolivanov/lavagate/internal/pkg/env"
)

// Base62 alphabet (0-9, a-z, A-Z).
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const (
	// DefaultCodeLength is the slug length used when SHORT_CODE_LENGTH is unset.
	DefaultCodeLength = 8

	// maxCreateAttempts bounds the collision retry loop on code generation.
	maxCreateAttempts = 5
)

// GenerateSecureSlug creates a cryptographically secure random Base62 slug.
func GenerateSecureSlug(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid slug length: %d", length)
	}

	// Rejection sampling to avoid modulo bias.
	// 248 is the largest multiple of 62 below 256.
	const maxRandomByte = 248

	slug := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			slug[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(slug), nil
}

// IsValidCode reports whether the string looks like one of our slugs. Used to
// reject junk before hitting the database.
func IsValidCode(code string) bool {
	if code == "" || len(code) > 32 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(alphabet, code[i]) == -1 {
			return false
		}
	}
	return true
}

// Service creates and resolves short links for long payment URLs. Telegram
// renders long gateway URLs poorly, so the bot hands out a compact redirect
// hosted on our own domain instead.
type Service struct {
	links      repository.ShortLinkRepository
	baseURL    string
	codeLength int
}

// NewService creates a short-link service. baseURL is the public origin the
// redirect handler is reachable on, without a trailing slash.
func NewService(links repository.ShortLinkRepository, baseURL string, codeLength int) *Service {
	if codeLength <= 0 {
		codeLength = DefaultCodeLength
	}
	return &Service{
		links:      links,
		baseURL:    strings.TrimRight(baseURL, "/"),
		codeLength: codeLength,
	}
}

// NewServiceFromEnv builds the service from PUBLIC_BASE_URL and
// SHORT_CODE_LENGTH.
func NewServiceFromEnv(links repository.ShortLinkRepository) *Service {
	length := DefaultCodeLength
	if raw := env.GetEnv("SHORT_CODE_LENGTH", ""); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			length = v
		}
	}
	return NewService(links, env.GetEnv("PUBLIC_BASE_URL", "http://localhost:8080"), length)
}

// Shorten stores the target URL under a fresh random code and returns the full
// short URL. Code collisions are retried a bounded number of times.
func (s *Service) Shorten(targetURL string) (string, error) {
	if targetURL == "" {
		return "", fmt.Errorf("empty target URL")
	}

	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		code, err := GenerateSecureSlug(s.codeLength)
		if err != nil {
			return "", err
		}

		link := &models.ShortLink{Code: code, TargetURL: targetURL}
		if err := s.links.Create(link); err != nil {
			// Most likely a unique-index collision on the code; try another.
			lastErr = err
			log.Warnf("[Shortener] failed to store code %s (attempt %d): %v", code, attempt+1, err)
			continue
		}

		return s.baseURL + "/s/" + code, nil
	}

	return "", fmt.Errorf("failed to create short link after %d attempts: %w", maxCreateAttempts, lastErr)
}

// ResolveLink returns the stored row for the code.
func (s *Service) ResolveLink(code string) (*models.ShortLink, error) {
	if !IsValidCode(code) {
		return nil, fmt.Errorf("invalid short code")
	}
	return s.links.GetByCode(code)
}
