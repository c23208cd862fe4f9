// Package options 为各组件的命令行/配置参数提供公共约定。
//
// 每个组件的 Options 都实现 IOptions：AddFlags 以 "<prefix>.<component>." 注册
// 扁平的 flag 名，与 viper 的嵌套 key 一一对应；Validate 返回全部错误而非首个。
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every component option set.
type IOptions interface {
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
	Validate() []error
}

// Join builds a flag prefix: Join("a", "b") is "a.b.", Join() is "".
func Join(prefixes ...string) string {
	var b strings.Builder
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		b.WriteString(p)
		b.WriteByte('.')
	}
	return b.String()
}
