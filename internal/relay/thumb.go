package relay

import (
	"bytes"
	"fmt"
	"io"
	"os"

	ffmpeg_go "github.com/u2takey/ffmpeg-go"
)

// videoThumbnail extracts the first frame of a video as a scaled still
// image, preserving aspect ratio at the given width.
func videoThumbnail(content []byte, width int) ([]byte, error) {
	inputReader, inputWriter := io.Pipe()
	outputReader, outputWriter := io.Pipe()

	go func() {
		defer inputWriter.Close()
		if _, err := inputWriter.Write(content); err != nil {
			inputWriter.CloseWithError(err)
		}
	}()

	go func() {
		defer outputWriter.Close()
		cmd := ffmpeg_go.Input("pipe:0").
			Filter("scale", ffmpeg_go.Args{fmt.Sprintf("%d:-1", width)}).
			Output("pipe:", ffmpeg_go.KwArgs{"vframes": 1, "format": "image2"}).
			WithInput(inputReader).
			WithOutput(outputWriter).
			WithErrorOutput(os.Stderr).
			OverWriteOutput()
		if err := cmd.Run(); err != nil {
			outputWriter.CloseWithError(err)
		}
	}()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(outputReader); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("no thumbnail data returned")
	}
	return buf.Bytes(), nil
}
