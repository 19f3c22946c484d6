package message

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrInvalidField 欄位名稱或查詢值不合法.
var ErrInvalidField = errors.New("invalid field")

// ValidateFieldName 欄位名稱不得為操作符或巢狀路徑.
func ValidateFieldName(field string) error {
	if field == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidField)
	}
	if strings.HasPrefix(field, "$") || strings.Contains(field, ".") || strings.ContainsRune(field, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return nil
}

// equalityFilter 建立單一欄位相等條件。值一律以 $eq 包裝，
// 文件型的值會被拒絕，避免 {"$ne": ...} 之類的操作符注入.
func equalityFilter(field string, value interface{}) (bson.M, error) {
	if err := ValidateFieldName(field); err != nil {
		return nil, err
	}
	switch value.(type) {
	case bson.M, bson.D, map[string]interface{}, map[string]string:
		return nil, fmt.Errorf("%w: document value for %s", ErrInvalidField, field)
	}
	return bson.M{field: bson.M{"$eq": value}}, nil
}

// validateFields 檢查更新欄位名稱.
func validateFields(fields Fields) error {
	for field := range fields {
		if err := ValidateFieldName(field); err != nil {
			return err
		}
	}
	return nil
}
