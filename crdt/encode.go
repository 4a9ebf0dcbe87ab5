package crdt

import (
	"sort"

	"ycrdt/codec"
	"ycrdt/common"
)

// allOps flattens this Doc's entire integrated state - every sequence
// item across Text/Array/XmlFragment/XmlText, plus every Map and
// XmlElement-attribute entry, live or tombstoned - into codec.OpRecords
// sorted by ascending OpID. Sorting by id rather than integration order
// means two Docs that integrated the same ops in different orders still
// produce byte-identical EncodeStateAsUpdate output.
func (d *Doc) allOps() []codec.OpRecord {
	var ops []codec.OpRecord

	for _, it := range d.arena {
		seq := it.parent
		if seq == nil {
			continue
		}
		ops = append(ops, codec.OpRecord{
			ID:          it.id,
			ParentName:  seq.parentName,
			ParentID:    seq.parentID,
			LeftOrigin:  it.leftOrigin,
			RightOrigin: it.rightOrigin,
			Kind:        common.OperationTypeInsert,
			Content:     it.content,
		})
		if it.deleted {
			ops = append(ops, codec.OpRecord{
				ID:          it.id,
				ParentName:  seq.parentName,
				ParentID:    seq.parentID,
				Kind:        common.OperationTypeDelete,
				DeleteCount: 1,
			})
		}
	}

	for name, n := range d.roots {
		if m, ok := n.(*Map); ok {
			ops = append(ops, mapOps(m, name, common.OpID{}, common.NodeTypeMap)...)
		}
	}
	for id, n := range d.nodes {
		switch v := n.(type) {
		case *Map:
			ops = append(ops, mapOps(v, "", id, common.NodeTypeMap)...)
		case *XmlElement:
			ops = append(ops, mapOps(v.attr, "", id, common.NodeTypeXmlElem)...)
		}
	}

	// A sequence item's Insert and its tombstone share an id; the Insert
	// sorts first so equal ids still yield one fixed order.
	sort.Slice(ops, func(i, j int) bool {
		if c := ops[i].ID.Compare(ops[j].ID); c != 0 {
			return c < 0
		}
		return ops[i].Kind == common.OperationTypeInsert && ops[j].Kind != common.OperationTypeInsert
	})
	return ops
}

func mapOps(m *Map, parentName string, parentID common.OpID, nodeType common.NodeType) []codec.OpRecord {
	out := make([]codec.OpRecord, 0, len(m.entries))
	for key, e := range m.entries {
		kind := common.OperationTypeInsert
		if e.deleted {
			kind = common.OperationTypeDelete
		}
		out = append(out, codec.OpRecord{
			ID:         e.id,
			ParentName: parentName,
			ParentID:   parentID,
			Kind:       kind,
			NodeType:   nodeType,
			Key:        key,
			Content:    e.value,
		})
	}
	return out
}
