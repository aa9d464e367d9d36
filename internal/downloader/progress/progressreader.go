package progress

import "io"

// Reader wraps an io.Reader and reports progress via a callback every
// reportInterval bytes, and once when the first 5% of a known total is read.
type Reader struct {
	Reader     io.Reader
	Total      int64
	OnProgress func(read int64, total int64)

	totalRead      int64
	sinceReport    int64
	reportInterval int64
}

func NewReader(r io.Reader, total int64, interval int64, cb func(read int64, total int64)) *Reader {
	return &Reader{
		Reader:         r,
		Total:          total,
		OnProgress:     cb,
		reportInterval: interval,
	}
}

// Read implements io.Reader.
func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.sinceReport += int64(n)

		if pr.shouldReport(int64(n)) && pr.OnProgress != nil {
			pr.OnProgress(pr.totalRead, pr.Total)
			pr.sinceReport = 0
		}
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.totalRead
}

func (pr *Reader) shouldReport(n int64) bool {
	if pr.reportInterval > 0 && pr.sinceReport >= pr.reportInterval {
		return true
	}

	return pr.Total > 0 && pr.totalRead*100/pr.Total >= 5 && (pr.totalRead-n)*100/pr.Total < 5
}
