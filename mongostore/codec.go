// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package mongostore

import (
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storj.io/jcrstore/itemdata"
)

// Field names of the documents.
const (
	fieldID          = "_id"
	fieldParentID    = "pid"
	fieldName        = "name"
	fieldIndex       = "idx"
	fieldVersion     = "vsn"
	fieldIsNode      = "ino"
	fieldOrderNumber = "onum"
	fieldType        = "type"
	fieldMultiValued = "imv"
	fieldValues      = "vals"

	fieldPrimaryType = "ptype"
	fieldMixinTypes  = "mtypes"
	fieldOwner       = "owner"
	fieldPermissions = "perms"

	fieldSize    = "size"
	fieldStorage = "vsto"
	fieldRef     = "ref"
)

// mainProperties maps the properties mirrored onto their node to the field
// holding the copy.
var mainProperties = map[itemdata.QName]string{
	itemdata.PrimaryType: fieldPrimaryType,
	itemdata.MixinTypes:  fieldMixinTypes,
	itemdata.Owner:       fieldOwner,
	itemdata.Permissions: fieldPermissions,
}

// document is a node or a property as stored in the collection.
type document struct {
	ID          string `bson:"_id"`
	ParentID    string `bson:"pid"`
	Name        string `bson:"name"`
	Index       int    `bson:"idx"`
	IsNode      bool   `bson:"ino"`
	Version     int    `bson:"vsn"`
	OrderNumber int    `bson:"onum"`

	Type        itemdata.Type `bson:"type,omitempty"`
	MultiValued bool          `bson:"imv,omitempty"`
	Values      []valueEntry  `bson:"vals,omitempty"`

	PrimaryType []string `bson:"ptype,omitempty"`
	MixinTypes  []string `bson:"mtypes,omitempty"`
	Owner       []string `bson:"owner,omitempty"`
	Permissions []string `bson:"perms,omitempty"`
}

// valueEntry is one value of a property. Inline values set exactly one of
// the typed fields, external values set Storage instead.
type valueEntry struct {
	OrderNumber int    `bson:"onum"`
	Size        int64  `bson:"size"`
	Storage     string `bson:"vsto,omitempty"`

	Binary     []byte  `bson:"bin,omitempty"`
	Boolean    bool    `bson:"bol,omitempty"`
	Date       string  `bson:"date,omitempty"`
	Double     float64 `bson:"dbl,omitempty"`
	Long       int64   `bson:"lng,omitempty"`
	Name       string  `bson:"na,omitempty"`
	Path       string  `bson:"pa,omitempty"`
	Permission string  `bson:"per,omitempty"`
	Reference  string  `bson:"ref,omitempty"`
	String     string  `bson:"str,omitempty"`
}

func parentID(id string) string {
	if id == "" {
		return itemdata.RootParentID
	}
	return id
}

func nodeDocument(node *itemdata.NodeData) document {
	return document{
		ID:          node.ID,
		ParentID:    parentID(node.ParentID),
		Name:        node.Name.String(),
		Index:       node.Index,
		IsNode:      true,
		Version:     node.Version,
		OrderNumber: node.OrderNumber,
	}
}

func propertyDocument(property *itemdata.PropertyData, values []valueEntry) document {
	return document{
		ID:          property.ID,
		ParentID:    property.ParentID,
		Name:        property.Name.String(),
		Index:       1,
		IsNode:      false,
		Version:     property.Version,
		Type:        property.Type,
		MultiValued: property.MultiValued,
		Values:      values,
	}
}

// inlineEntry encodes an inline value.
func inlineEntry(orderNumber int, v itemdata.Value) valueEntry {
	entry := valueEntry{OrderNumber: orderNumber, Size: int64(len(itemdata.EncodeValue(v)))}
	switch v := v.(type) {
	case itemdata.Binary:
		entry.Binary = []byte(v)
	case itemdata.Boolean:
		entry.Boolean = bool(v)
	case itemdata.Date:
		entry.Date = v.String()
	case itemdata.Double:
		entry.Double = float64(v)
	case itemdata.Long:
		entry.Long = int64(v)
	case itemdata.Name:
		entry.Name = v.String()
	case itemdata.Path:
		entry.Path = v.String()
	case itemdata.Permission:
		entry.Permission = v.String()
	case itemdata.Reference:
		entry.Reference = string(v)
	case itemdata.String:
		entry.String = string(v)
	}
	return entry
}

func externalEntry(orderNumber int, storageID string, size int64) valueEntry {
	return valueEntry{OrderNumber: orderNumber, Size: size, Storage: storageID}
}

// value decodes an inline value of type typ.
func (entry valueEntry) value(typ itemdata.Type) (itemdata.Value, error) {
	switch typ {
	case itemdata.TypeBinary, itemdata.TypeUndefined:
		return itemdata.Binary(append([]byte{}, entry.Binary...)), nil
	case itemdata.TypeBoolean:
		return itemdata.Boolean(entry.Boolean), nil
	case itemdata.TypeDate:
		t, err := time.Parse(itemdata.DateLayout, entry.Date)
		if err != nil {
			return nil, Error.New("invalid date %q: %v", entry.Date, err)
		}
		return itemdata.Date(t), nil
	case itemdata.TypeDouble:
		return itemdata.Double(entry.Double), nil
	case itemdata.TypeLong:
		return itemdata.Long(entry.Long), nil
	case itemdata.TypeName:
		return itemdata.ParseValue(typ, entry.Name)
	case itemdata.TypePath:
		return itemdata.ParseValue(typ, entry.Path)
	case itemdata.TypePermission:
		return itemdata.ParseValue(typ, entry.Permission)
	case itemdata.TypeReference:
		return itemdata.Reference(entry.Reference), nil
	case itemdata.TypeString:
		return itemdata.String(entry.String), nil
	default:
		return nil, Error.New("unknown property type %d", int(typ))
	}
}

// mirror returns the text of the values copied onto the node of a main
// property.
func mirror(property *itemdata.PropertyData) []string {
	texts := make([]string, 0, len(property.Values))
	for _, value := range property.Values {
		if value.Value != nil {
			texts = append(texts, value.Value.String())
		}
	}
	return texts
}

// namePattern returns the filter matching names selected by pattern. A
// pattern without '*' matches the name exactly.
func namePattern(pattern itemdata.QName) interface{} {
	name := pattern.String()
	if !strings.Contains(name, "*") {
		return name
	}
	parts := strings.Split(name, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return primitive.Regex{Pattern: "^" + strings.Join(parts, ".*") + "$"}
}

// patternsFilter returns the clauses of a children lookup restricted to
// patterns. Node lookups also match the index.
func patternsFilter(patterns []itemdata.QPathEntryFilter, matchIndex bool) bson.A {
	clauses := make(bson.A, 0, len(patterns))
	for _, pattern := range patterns {
		clause := bson.D{{Key: fieldName, Value: namePattern(pattern.Name)}}
		if matchIndex && pattern.Index != -1 {
			clause = append(clause, bson.E{Key: fieldIndex, Value: pattern.Index})
		}
		clauses = append(clauses, clause)
	}
	return clauses
}
