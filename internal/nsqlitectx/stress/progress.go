package stress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// progressBar counts finished stress tasks.
type progressBar struct {
	pb *progressbar.ProgressBar
}

func newProgressBar(out io.Writer, description string, maxItems int, visible bool) *progressBar {
	var pb *progressbar.ProgressBar
	if visible && out != nil {
		pb = progressbar.NewOptions(
			maxItems,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(out, "\n") }),
		)
	} else {
		pb = progressbar.DefaultSilent(int64(maxItems), description)
	}
	_ = pb.Set(0)

	return &progressBar{pb: pb}
}

func (p *progressBar) Inc() {
	_ = p.pb.Add(1)
}

func (p *progressBar) Finish() {
	_ = p.pb.Finish()
	_ = p.pb.Close()
}
