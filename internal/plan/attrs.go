package plan

import (
	"fmt"
	"strconv"
)

// Attrs kernel 属性，YAML 解析出来的值类型不固定，取值时统一转换
type Attrs map[string]interface{}

func (a Attrs) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Float 取浮点属性，不存在返回 def
func (a Attrs) Float(key string, def float64) (float64, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("attr %s: want number, got %T", key, v)
	}
}

// Int 取整数属性，不存在返回 def
func (a Attrs) Int(key string, def int64) (int64, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("attr %s: %v is not an integer", key, x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("attr %s: want integer, got %T", key, v)
	}
}

// String 取字符串属性，不存在返回 def
func (a Attrs) String(key string, def string) string {
	v, ok := a[key]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
