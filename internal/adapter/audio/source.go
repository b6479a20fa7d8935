package audio

import (
	"context"
	"fmt"
	"io"

	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/port"
)

// loadSource fetches the bytes for a URL source, reporting failures through
// the load error hook
func loadSource(ctx context.Context, fetcher port.Fetcher, opts port.ResourceOptions) ([]byte, error) {
	fail := func(err error) ([]byte, error) {
		err = fmt.Errorf("%w: %s: %v", domain.ErrResourceCreate, opts.SoundID, err)
		if opts.OnLoadError != nil {
			opts.OnLoadError(opts.SoundID, err)
		}
		return nil, err
	}

	if fetcher == nil {
		return fail(fmt.Errorf("no fetcher for %s", opts.URL))
	}
	res, err := fetcher.Fetch(ctx, opts.URL)
	if err != nil {
		return fail(err)
	}
	if !res.OK {
		return fail(&domain.FetchError{URL: opts.URL, StatusCode: res.StatusCode})
	}
	return res.Data, nil
}

// loopReader rewinds its source at EOF so playback never ends
type loopReader struct {
	src io.ReadSeeker
}

func (l *loopReader) Read(p []byte) (int, error) {
	n, err := l.src.Read(p)
	if err == io.EOF {
		if _, serr := l.src.Seek(0, io.SeekStart); serr != nil {
			return n, serr
		}
		if n == 0 {
			return l.src.Read(p)
		}
		return n, nil
	}
	return n, err
}

func (l *loopReader) Seek(offset int64, whence int) (int64, error) {
	return l.src.Seek(offset, whence)
}
