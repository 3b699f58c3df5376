package certs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lms "github.com/bohemiyan/LMS"
)

func TestFileRendererWritesCertificate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	r := FileRenderer{Dir: dir}

	path, err := r.Render(context.Background(), lms.CertificateData{
		EnrollmentID: 12,
		UserName:     "Ada <Lovelace>",
		ModuleTitle:  "Fire Safety",
		Score:        88,
		CompletedAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "enrollment-12.html"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Ada &lt;Lovelace&gt;")
	assert.Contains(t, string(body), "final score of 88.0")
	assert.Contains(t, string(body), "Completed on 2026-03-02")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")
}

func TestFileRendererHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FileRenderer{Dir: t.TempDir()}.Render(ctx, lms.CertificateData{EnrollmentID: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
