package store

import (
	"fmt"
	"sync"

	"github.com/INLOpen/skiplist"
	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/INLOpen/nexuskv/core"
	"github.com/INLOpen/nexuskv/query"
)

// IndexDataType declares what kind of bin values a secondary index covers.
type IndexDataType byte

const (
	// IndexNumeric indexes signed 64-bit integer terms; it is ordered and
	// serves both equality and range filters.
	IndexNumeric IndexDataType = 0
	// IndexString indexes UTF-8 string terms; equality only, since the
	// server index defines no ordering for strings.
	IndexString IndexDataType = 1
)

func (dt IndexDataType) String() string {
	switch dt {
	case IndexNumeric:
		return "numeric"
	case IndexString:
		return "string"
	default:
		return "unknown"
	}
}

// indexKey names one index within a namespace: the bin it covers plus the
// collection scope, so a scalar index and a list index on the same bin can
// coexist.
type indexKey struct {
	bin            string
	collectionType query.IndexCollectionType
}

// secondaryIndex maps index terms to posting bitmaps of record IDs.
// Numeric terms live in an ordered skiplist so range filters can scan
// [begin, end]; string terms live in a hash map. Posting bitmaps shrink in
// place when records are removed; emptied term nodes stay behind as harmless
// tombstones because the skiplist does not support deletion.
type secondaryIndex struct {
	bin            string
	collectionType query.IndexCollectionType
	dataType       IndexDataType

	mu      sync.RWMutex
	numeric *skiplist.SkipList[int64, *roaring64.Bitmap]
	strings map[string]*roaring64.Bitmap
}

func newSecondaryIndex(bin string, ict query.IndexCollectionType, dt IndexDataType) *secondaryIndex {
	idx := &secondaryIndex{
		bin:            bin,
		collectionType: ict,
		dataType:       dt,
	}
	switch dt {
	case IndexNumeric:
		idx.numeric = skiplist.NewWithComparator[int64, *roaring64.Bitmap](func(a, b int64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		})
	case IndexString:
		idx.strings = make(map[string]*roaring64.Bitmap)
	}
	return idx
}

// terms extracts the index terms of a bin value according to the index's
// collection scope. A value whose shape does not match the scope (e.g. a
// scalar bin under a list index) yields no terms rather than an error, the
// same way the server skips records it cannot index.
func (idx *secondaryIndex) terms(binValue any) []any {
	switch idx.collectionType {
	case query.CollectionDefault:
		return []any{binValue}
	case query.CollectionList:
		list, ok := binValue.([]any)
		if !ok {
			return nil
		}
		return list
	case query.CollectionMapKeys:
		m, ok := binValue.(map[string]any)
		if !ok {
			return nil
		}
		keys := make([]any, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		return keys
	case query.CollectionMapValues:
		m, ok := binValue.(map[string]any)
		if !ok {
			return nil
		}
		values := make([]any, 0, len(m))
		for _, v := range m {
			values = append(values, v)
		}
		return values
	default:
		return nil
	}
}

// insert adds the record's terms for the given bin value to the postings.
func (idx *secondaryIndex) insert(recordID uint64, binValue any) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, term := range idx.terms(binValue) {
		idx.updateTerm(term, func(bm *roaring64.Bitmap) { bm.Add(recordID) })
	}
}

// remove drops the record's terms for the given bin value from the postings.
func (idx *secondaryIndex) remove(recordID uint64, binValue any) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, term := range idx.terms(binValue) {
		idx.updateTerm(term, func(bm *roaring64.Bitmap) { bm.Remove(recordID) })
	}
}

// updateTerm applies fn to the posting bitmap of one term, creating the
// bitmap on first use. Terms whose kind does not match the index data type
// are skipped.
func (idx *secondaryIndex) updateTerm(term any, fn func(*roaring64.Bitmap)) {
	switch idx.dataType {
	case IndexNumeric:
		n, ok := numericTerm(term)
		if !ok {
			return
		}
		if node, found := idx.numeric.Seek(n); found && node.Key() == n {
			fn(node.Value())
			return
		}
		bm := roaring64.New()
		fn(bm)
		idx.numeric.Insert(n, bm)
	case IndexString:
		s, ok := term.(string)
		if !ok {
			return
		}
		bm, found := idx.strings[s]
		if !found {
			bm = roaring64.New()
			idx.strings[s] = bm
		}
		fn(bm)
	}
}

// matchEqual returns the record IDs whose indexed term equals the endpoint.
func (idx *secondaryIndex) matchEqual(v core.Value) (*roaring64.Bitmap, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	switch ev := v.(type) {
	case core.IntegerValue:
		if idx.dataType != IndexNumeric {
			return nil, fmt.Errorf("index on bin '%s' is %s, not numeric", idx.bin, idx.dataType)
		}
		if node, found := idx.numeric.Seek(ev.Int64()); found && node.Key() == ev.Int64() {
			return node.Value().Clone(), nil
		}
		return roaring64.New(), nil
	case core.StringValue:
		if idx.dataType != IndexString {
			return nil, fmt.Errorf("index on bin '%s' is %s, not string", idx.bin, idx.dataType)
		}
		if bm, found := idx.strings[ev.String()]; found {
			return bm.Clone(), nil
		}
		return roaring64.New(), nil
	default:
		return nil, fmt.Errorf("unsupported filter endpoint type %T", v)
	}
}

// matchRange returns the union of postings for every numeric term in
// [begin, end].
func (idx *secondaryIndex) matchRange(begin, end int64) (*roaring64.Bitmap, error) {
	if idx.dataType != IndexNumeric {
		return nil, fmt.Errorf("range filter requires a numeric index, bin '%s' is %s", idx.bin, idx.dataType)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := roaring64.New()
	it := idx.numeric.NewIterator()
	for ok := it.Seek(begin); ok; ok = it.Next() {
		if it.Key() > end {
			break
		}
		out.Or(it.Value())
	}
	return out, nil
}

// numericTerm promotes the integer widths a bin may carry to int64.
func numericTerm(term any) (int64, bool) {
	switch n := term.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
