package risk

import (
	"fmt"
	"time"
)

// newID 生成带前缀的时间戳ID
func newID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}
