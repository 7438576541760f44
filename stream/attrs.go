package stream

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/store"
)

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// getBoolAttr extracts a boolean attribute from a DynamoDB stream image.
func getBoolAttr(image map[string]events.DynamoDBAttributeValue, key string) bool {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeBoolean {
		return v.Boolean()
	}
	return false
}

// getStringListAttr extracts a string list attribute from a DynamoDB stream image.
func getStringListAttr(image map[string]events.DynamoDBAttributeValue, key string) []string {
	v, ok := image[key]
	if !ok {
		return nil
	}
	var result []string
	switch v.DataType() {
	case events.DataTypeList:
		for _, item := range v.List() {
			if item.DataType() == events.DataTypeString {
				result = append(result, item.String())
			}
		}
	case events.DataTypeStringSet:
		result = append(result, v.StringSet()...)
	}
	return result
}

// RecordRef returns the record a stream event is about. It reads the
// entity_ref attribute of the old image and falls back to the key, so it
// works with KEYS_ONLY streams too.
func RecordRef(record events.DynamoDBEventRecord) (entity.Ref, error) {
	if s := getStringAttr(record.Change.OldImage, store.AttrRef); s != "" {
		return entity.ParseRef(s)
	}
	if s := getStringAttr(record.Change.Keys, "pk"); s != "" {
		return entity.ParseRef(s)
	}
	return entity.Ref{}, fmt.Errorf("stream record %s carries no entity reference", record.EventID)
}
