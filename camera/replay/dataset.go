package replay

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// IndexFileName is the name of the record index inside a dataset directory.
const IndexFileName = "data.bin"

// maxRecordLength bounds a single record; real records are a few hundred bytes.
const maxRecordLength = 1 << 20

// ErrDatasetNotLoaded is returned when playback is queried before a dataset is loaded.
var ErrDatasetNotLoaded = errors.New("dataset not loaded")

// Dataset is a recorded session: an index of records plus one JPEG per record named after its
// timestamp.
type Dataset struct {
	Dir     string
	Records []Record
}

// ImagePath returns where the image for rec is stored.
func (d *Dataset) ImagePath(rec Record) string {
	return filepath.Join(d.Dir, strconv.FormatInt(rec.Timestamp, 10)+".jpg")
}

// LoadDataset reads the record index of the dataset in dir.
func LoadDataset(dir string, logger golog.Logger) (*Dataset, error) {
	if dir == "" {
		return nil, errors.New("dataset path is empty")
	}
	f, err := os.Open(filepath.Join(dir, IndexFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to find dataset at path %q", dir)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Debugw("closing dataset index", "error", err)
		}
	}()

	records, err := ReadRecords(f, logger)
	if err != nil {
		return nil, err
	}
	logger.Infow("loaded dataset", "path", dir, "frames", len(records))
	return &Dataset{Dir: dir, Records: records}, nil
}

// ReadRecords decodes a record index: a sequence of strings, each prefixed with its byte length
// as a little-endian base-128 varint. Invalid records are logged and skipped.
func ReadRecords(r io.Reader, logger golog.Logger) ([]Record, error) {
	br := bufio.NewReader(r)
	var records []Record
	for {
		n, err := binary.ReadUvarint(br)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading record length")
		}
		if n > maxRecordLength {
			return nil, errors.Errorf("record of %d bytes exceeds limit", n)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, errors.Wrap(err, "reading record")
		}
		rec, err := ParseRecord(string(buf), func(field int, err error) {
			logger.Errorw("invalid matrix in record, using identity", "field", field, "error", err)
		})
		if err != nil {
			logger.Errorw("skipping record", "error", err)
			continue
		}
		records = append(records, rec)
	}
}

// WriteRecords encodes records in the index format read by ReadRecords.
func WriteRecords(w io.Writer, records []Record) error {
	var prefix [binary.MaxVarintLen64]byte
	for _, rec := range records {
		s := rec.String()
		n := binary.PutUvarint(prefix[:], uint64(len(s)))
		if _, err := w.Write(prefix[:n]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}
