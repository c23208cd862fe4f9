package llm

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeConfig 将工厂收到的配置 map 解码到供应商的 Config 结构体（按
// mapstructure tag 匹配）。空字符串、nil 与非正的 time.Duration 视为未设置，
// 保留 dst 中的默认值；字符串形式的时长（如 "30s"）会被解析。
func DecodeConfig(src map[string]any, dst any) error {
	set := make(map[string]any, len(src))
	for k, v := range src {
		switch tv := v.(type) {
		case nil:
			continue
		case string:
			if tv == "" {
				continue
			}
		case time.Duration:
			if tv <= 0 {
				continue
			}
		}
		set[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(set); err != nil {
		return fmt.Errorf("decode provider config: %w", err)
	}
	return nil
}
