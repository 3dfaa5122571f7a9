package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/colorfulnotion/regwin/common"
	"github.com/colorfulnotion/regwin/log"
	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvm/program"
	"github.com/colorfulnotion/regwin/wvmerrors"
	"github.com/fxamacker/cbor/v2"
)

const (
	imagePrefix = "img:"
	namePrefix  = "name:"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("storage: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ImageRecord is one stored program.
type ImageRecord struct {
	Name    string       `cbor:"1,keyasint"`
	Words   []types.Word `cbor:"2,keyasint"`
	Entry   uint16       `cbor:"3,keyasint"`
	Created int64        `cbor:"4,keyasint"` // unix seconds
}

// ImageInfo summarises a stored image for listings.
type ImageInfo struct {
	Hash    common.Hash
	Name    string
	Words   int
	Entry   uint16
	Created time.Time
}

// ImageStore keeps program images keyed by the blake2b hash of their binary
// encoding, with an optional name index.
type ImageStore struct {
	ps  *PersistenceStore
	now func() time.Time
}

func NewImageStore(ps *PersistenceStore) *ImageStore {
	return &ImageStore{ps: ps, now: time.Now}
}

// ImageHash is the content address of code.
func ImageHash(code []types.Word) common.Hash {
	return common.Blake2Hash(program.EncodeImage(code))
}

func imageKey(h common.Hash) []byte {
	return append([]byte(imagePrefix), h.Bytes()...)
}

func nameKey(name string) string {
	return namePrefix + name
}

// Put stores code under its hash and, when name is set, points name at it.
// Storing the same code again replaces the record.
func (s *ImageStore) Put(name string, code []types.Word) (common.Hash, error) {
	if len(code) == 0 {
		return common.Hash{}, wvmerrors.ErrIEmptyImage
	}
	entry, _ := program.NewProgram(code).Entry()
	rec := ImageRecord{Name: name, Words: code, Entry: entry, Created: s.now().Unix()}
	data, err := cborEncMode.Marshal(&rec)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode image: %w", err)
	}
	h := ImageHash(code)
	ops := map[string][]byte{string(imageKey(h)): data}
	if name != "" {
		ops[nameKey(name)] = h.Bytes()
	}
	if err := s.ps.Write(ops); err != nil {
		return common.Hash{}, err
	}
	log.Debug(log.StorageMonitoring, "image stored", "hash", h.String_short(), "name", name, "words", len(code))
	return h, nil
}

// Get loads the image stored under h.
func (s *ImageStore) Get(h common.Hash) (*ImageRecord, error) {
	data, found, err := s.ps.Get(imageKey(h))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", wvmerrors.ErrIImageNotFound, h.Hex())
	}
	var rec ImageRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode image %s: %w", h.String_short(), err)
	}
	return &rec, nil
}

// GetByName loads the image the name index points at.
func (s *ImageStore) GetByName(name string) (common.Hash, *ImageRecord, error) {
	hb, found, err := s.ps.Get([]byte(nameKey(name)))
	if err != nil {
		return common.Hash{}, nil, err
	}
	if !found {
		return common.Hash{}, nil, fmt.Errorf("%w: %q", wvmerrors.ErrIImageNotFound, name)
	}
	h := common.BytesToHash(hb)
	rec, err := s.Get(h)
	return h, rec, err
}

// Resolve accepts either a hex hash or a name.
func (s *ImageStore) Resolve(ref string) (common.Hash, *ImageRecord, error) {
	if common.IsHexHash(ref) {
		h := common.HexToHash(ref)
		rec, err := s.Get(h)
		return h, rec, err
	}
	return s.GetByName(ref)
}

// List returns every stored image in hash order.
func (s *ImageStore) List() ([]ImageInfo, error) {
	pairs, err := s.ps.GetWithPrefix([]byte(imagePrefix))
	if err != nil {
		return nil, err
	}
	out := make([]ImageInfo, 0, len(pairs))
	for _, kv := range pairs {
		var rec ImageRecord
		if err := cbor.Unmarshal(kv[1], &rec); err != nil {
			return nil, fmt.Errorf("decode image %x: %w", kv[0], err)
		}
		out = append(out, ImageInfo{
			Hash:    common.BytesToHash(kv[0][len(imagePrefix):]),
			Name:    rec.Name,
			Words:   len(rec.Words),
			Entry:   rec.Entry,
			Created: time.Unix(rec.Created, 0).UTC(),
		})
	}
	return out, nil
}

// Delete removes the image under h and every name that points at it.
func (s *ImageStore) Delete(h common.Hash) error {
	if _, err := s.Get(h); err != nil {
		return err
	}
	names, err := s.Names()
	if err != nil {
		return err
	}
	ops := map[string][]byte{string(imageKey(h)): nil}
	for name, target := range names {
		if target == h {
			ops[nameKey(name)] = nil
		}
	}
	log.Debug(log.StorageMonitoring, "image deleted", "hash", h.String_short())
	return s.ps.Write(ops)
}

// Names lists the name index.
func (s *ImageStore) Names() (map[string]common.Hash, error) {
	pairs, err := s.ps.GetWithPrefix([]byte(namePrefix))
	if err != nil {
		return nil, err
	}
	out := make(map[string]common.Hash, len(pairs))
	for _, kv := range pairs {
		out[strings.TrimPrefix(string(kv[0]), namePrefix)] = common.BytesToHash(kv[1])
	}
	return out, nil
}
