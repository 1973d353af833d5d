package savefile

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/tagtree"
)

// FileName is the save file inside a world directory.
const FileName = "world.save.zst"

const Version = 1

type Header struct {
	Version int    `json:"version"`
	World   string `json:"world"`
	SavedAt string `json:"saved_at"`
	// RunID is set when the file was written by a committed merge.
	RunID string `json:"run_id,omitempty"`
}

// Write stores tree as a zstd stream: one JSON header line followed by
// the gob-encoded root node. The file is replaced atomically.
func Write(path string, h Header, tree *tagtree.Tree) error {
	if tree == nil || tree.Root == nil {
		return fmt.Errorf("write %s: empty tree", path)
	}
	if h.Version == 0 {
		h.Version = Version
	}
	if h.SavedAt == "" {
		h.SavedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".save-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if err := encode(f, h, tree); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, h Header, tree *tagtree.Tree) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(h)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(tree.Root); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// Read decodes a save. Any failure wraps protocol.ErrSaveOpen.
func Read(path string) (Header, *tagtree.Tree, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, nil, fmt.Errorf("%w: %v", protocol.ErrSaveOpen, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, nil, fmt.Errorf("%w: %v", protocol.ErrSaveOpen, err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, nil, fmt.Errorf("%w: header: %v", protocol.ErrSaveOpen, err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, nil, fmt.Errorf("%w: header: %v", protocol.ErrSaveOpen, err)
	}
	if h.Version != Version {
		return h, nil, fmt.Errorf("%w: unsupported version %d", protocol.ErrSaveOpen, h.Version)
	}

	var root tagtree.Node
	if err := gob.NewDecoder(br).Decode(&root); err != nil {
		return h, nil, fmt.Errorf("%w: gob decode: %v", protocol.ErrSaveOpen, err)
	}
	restoreEmpty(&root)
	return h, &tagtree.Tree{Root: &root}, nil
}

// ReadHeader returns only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(line, &h)
	return h, err
}

// gob drops empty maps, so compounds with no children come back nil.
func restoreEmpty(n *tagtree.Node) {
	if n.Kind == tagtree.KindCompound && n.Compound == nil {
		n.Compound = map[string]*tagtree.Node{}
	}
	for _, c := range n.List {
		restoreEmpty(c)
	}
	for _, c := range n.Compound {
		restoreEmpty(c)
	}
}
