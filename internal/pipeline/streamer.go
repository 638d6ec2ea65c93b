package pipeline

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"gopherai-search/internal/ai"
	"gopherai-search/internal/model"
)

// ErrorMarker prefixes the in-band fragment emitted when the provider fails.
const ErrorMarker = "⚠️ Error: "

var errConsumerStopped = errors.New("fragment consumer stopped")

type Profile string

const (
	ProfileFast  Profile = "fast"
	ProfileSmart Profile = "smart"
)

func ParseProfile(raw string) Profile {
	if Profile(strings.ToLower(strings.TrimSpace(raw))) == ProfileSmart {
		return ProfileSmart
	}
	return ProfileFast
}

type ModelProfiles struct {
	Fast  ai.ChatConfig
	Smart ai.ChatConfig
}

func (p ModelProfiles) For(profile Profile) ai.ChatConfig {
	if profile == ProfileSmart {
		return p.Smart
	}
	return p.Fast
}

type Streamer struct {
	llm      StreamCompleter
	profiles ModelProfiles
	logger   *zap.Logger
}

func NewStreamer(llm StreamCompleter, profiles ModelProfiles, logger *zap.Logger) *Streamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streamer{llm: llm, profiles: profiles, logger: logger}
}

// Stream returns a single-use lazy sequence of answer fragments. The
// provider call starts when the sequence is first ranged over and a second
// range yields nothing. A provider failure ends the sequence with one
// fragment starting with ErrorMarker.
func (s *Streamer) Stream(ctx context.Context, instruction string, history []model.Turn, profile Profile) iter.Seq[string] {
	var used atomic.Bool
	messages := Messages(instruction, history)
	cfg := s.profiles.For(profile)

	return func(yield func(string) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}

		emitted, stopped := false, false
		_, err := s.llm.StreamComplete(ctx, cfg, messages, func(chunk string) error {
			if stopped {
				return errConsumerStopped
			}
			emitted = true
			if !yield(chunk) {
				stopped = true
				return errConsumerStopped
			}
			return nil
		})
		if err == nil || stopped || errors.Is(err, errConsumerStopped) {
			return
		}

		s.logger.Warn("answer stream failed", zap.String("model", cfg.Model), zap.Error(err))
		fragment := ErrorMarker + err.Error()
		if emitted {
			fragment = "\n\n" + fragment
		}
		yield(fragment)
	}
}
