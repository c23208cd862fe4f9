// Package json 统一 finrouter 的 JSON 编解码，底层使用 sonic。
//
// sonic 在不支持 JIT 的平台上会自动退化为 encoding/json 兼容实现，
// 调用方无需关心架构差异。
package json

import (
	"io"

	"github.com/bytedance/sonic"
)

// api 与 encoding/json 行为一致：HTML 转义、map key 排序。
// 会话记录与 embedding 缓存都依赖稳定的输出。
var api = sonic.ConfigStd

// Encoder writes JSON values to a stream.
type Encoder interface {
	Encode(v any) error
}

// Decoder reads JSON values from a stream.
type Decoder interface {
	Decode(v any) error
}

func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

// UnmarshalString decodes without copying s into a byte slice.
func UnmarshalString(s string, v any) error { return api.UnmarshalFromString(s, v) }

func NewEncoder(w io.Writer) Encoder { return api.NewEncoder(w) }

func NewDecoder(r io.Reader) Decoder { return api.NewDecoder(r) }
