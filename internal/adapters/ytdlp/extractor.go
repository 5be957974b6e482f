// Package ytdlp adapts the local yt-dlp binary to the Extractor port.
package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Options control how the binary is invoked for every download.
type Options struct {
	// Format is the yt-dlp format selector. The default prefers matched
	// mp4 video+audio, then any mp4 candidate, then the overall best.
	Format string

	// MergeFormat is the container merged outputs are written in.
	MergeFormat string

	// AudioFormat, when set, extracts audio into the given format.
	AudioFormat string

	// AudioQuality is the audio quality passed alongside AudioFormat.
	AudioQuality string

	// RecodeFormat, when set, re-encodes the video into the given format.
	RecodeFormat string

	// ArchiveFile, when set, records downloaded IDs in a download archive.
	ArchiveFile string

	// Timeout bounds a single download. Zero means 30 minutes.
	Timeout time.Duration
}

// Extractor invokes the yt-dlp binary.
type Extractor struct {
	binaryPath string
	opts       Options
}

// New creates an Extractor for the binary at binaryPath ("yt-dlp" resolves
// via PATH when empty).
func New(binaryPath string, opts Options) *Extractor {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	if opts.Format == "" {
		opts.Format = "bv*[ext=mp4]+ba[ext=m4a]/b[ext=mp4]/b"
	}
	if opts.MergeFormat == "" {
		opts.MergeFormat = "mp4"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	return &Extractor{binaryPath: binaryPath, opts: opts}
}

// Download fetches the media at url and writes it to exactly outputPath.
// Playlist expansion is always disabled: one submission is one item.
func (e *Extractor) Download(ctx context.Context, url, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binaryPath, e.buildArgs(url, outputPath)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// buildArgs assembles the argument list for one download.
func (e *Extractor) buildArgs(url, outputPath string) []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--quiet",
		"-f", e.opts.Format,
		"--merge-output-format", e.opts.MergeFormat,
		"-o", outputPath,
	}
	if e.opts.AudioFormat != "" {
		args = append(args, "--extract-audio", "--audio-format", e.opts.AudioFormat)
		if e.opts.AudioQuality != "" {
			args = append(args, "--audio-quality", e.opts.AudioQuality)
		}
	}
	if e.opts.RecodeFormat != "" {
		args = append(args, "--recode-video", e.opts.RecodeFormat)
	}
	if e.opts.ArchiveFile != "" {
		args = append(args, "--download-archive", e.opts.ArchiveFile)
	}
	return append(args, url)
}

// Version reports the binary's version string.
func (e *Extractor) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binaryPath, "--version")

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp --version failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

// Update upgrades the binary to its latest release.
func (e *Extractor) Update(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binaryPath, "-U")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp -U failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
