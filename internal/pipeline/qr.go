package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"grape-calib/internal/logging"
	"grape-calib/internal/video"
	"grape-calib/pkg/geometry"

	"github.com/sirupsen/logrus"
)

// QRHeader is the header row of QR CSV files.
var QRHeader = []string{"frame", "data", "x1", "y1", "x2", "y2", "x3", "y3", "x4", "y4"}

// QRTable writes QR detections as CSV rows frame,data,x1,y1,...,x4,y4.
type QRTable struct {
	file *os.File
	w    *csv.Writer
	rows int
}

// NewQRTable creates a QR CSV file with its header row.
func NewQRTable(path string) (*QRTable, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	t := &QRTable{file: file, w: csv.NewWriter(file)}
	if err := t.w.Write(QRHeader); err != nil {
		file.Close()
		return nil, err
	}
	return t, nil
}

// Add appends one detection.
func (t *QRTable) Add(frame, payload int, corners [4]geometry.Point2D) error {
	row := make([]string, 0, len(QRHeader))
	row = append(row, strconv.Itoa(frame), strconv.Itoa(payload))
	for _, p := range corners {
		row = append(row, strconv.Itoa(int(p.X)), strconv.Itoa(int(p.Y)))
	}
	if err := t.w.Write(row); err != nil {
		return err
	}
	t.rows++
	return nil
}

// Rows returns the number of detections written.
func (t *QRTable) Rows() int { return t.rows }

// Close flushes and closes the file.
func (t *QRTable) Close() error {
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		t.file.Close()
		return err
	}
	return t.file.Close()
}

// ScanQR decodes every frame of src, from the current position to the end of
// the stream, and records the hits in table. Frames are scanned as decoded,
// without rectification. It returns the number of frames read.
func ScanQR(src video.Source, dec QRDecoder, table *QRTable, log logrus.FieldLogger) (int, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	meta := src.Metadata()
	log.WithFields(logrus.Fields{
		"frames": meta.FrameCount,
		"width":  meta.Width,
		"height": meta.Height,
	}).Info("scanning for QR codes")

	progress := logging.NewProgress(log, 500, meta.FrameCount)
	n := 0
	for {
		f, err := src.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("read frame %d: %w", n, err)
		}
		if payload, corners, ok := dec.Decode(f.RGBA()); ok {
			if err := table.Add(f.Index, payload, corners); err != nil {
				return n, err
			}
			log.WithFields(logrus.Fields{"frame": f.Index, "qr": payload}).Info("QR code detected")
		}
		progress.Tick(n, f.Index)
		n++
	}
	log.WithFields(logrus.Fields{"frames": n, "codes": table.Rows()}).Info("end of stream reached")
	return n, nil
}
