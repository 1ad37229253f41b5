package transcriber

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

const ModelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Progress receives whole percentages while a download runs.
type Progress func(pct int)

// DownloadModel fetches ggml-<name>.bin into the model dir. An existing
// file is left alone. The body is written to a temp file and renamed so
// an interrupted download never looks installed.
func (w *Whisper) DownloadModel(ctx context.Context, client *http.Client, baseURL, name string, progress Progress) error {
	dest := w.ModelPath(name)
	if _, err := os.Stat(dest); err == nil {
		report(progress, 100)
		return nil
	}
	if err := os.MkdirAll(w.ModelDir, 0o755); err != nil {
		return err
	}
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = ModelBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"ggml-"+name+".bin", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "rephrase")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %d", name, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(w.ModelDir, filepath.Base(dest)+".part*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	pw := &progressWriter{total: resp.ContentLength, fn: progress, last: -1}
	if _, err := io.Copy(io.MultiWriter(tmp, pw), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}
	report(progress, 100)
	return nil
}

type progressWriter struct {
	total int64
	done  int64
	last  int
	fn    Progress
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if p.total > 0 && p.fn != nil {
		pct := int(p.done * 100 / p.total)
		if pct != p.last && pct < 100 {
			p.last = pct
			p.fn(pct)
		}
	}
	return len(b), nil
}

func report(fn Progress, pct int) {
	if fn != nil {
		fn(pct)
	}
}
