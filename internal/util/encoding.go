package util

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// legacy 未声明字符集时依次尝试的编码
var legacy = []encoding.Encoding{
	simplifiedchinese.GB18030,
	traditionalchinese.Big5,
	charmap.Windows1252,
}

// DecodePayload 将发现请求体转换为 UTF-8
//
// charset 为 Content-Type 中声明的字符集，可为空。已是合法 UTF-8 且未声明其他字符集时原样返回。
func DecodePayload(b []byte, charset string) ([]byte, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" && charset != "utf8" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q", charset)
		}
		out, ok := tryDecode(enc, b)
		if !ok {
			return nil, fmt.Errorf("payload is not valid %s", charset)
		}
		return out, nil
	}
	if utf8.Valid(b) {
		return b, nil
	}
	for _, enc := range legacy {
		if out, ok := tryDecode(enc, b); ok {
			return out, nil
		}
	}
	return nil, fmt.Errorf("payload is not valid UTF-8")
}

func tryDecode(enc encoding.Encoding, b []byte) ([]byte, bool) {
	reader := transform.NewReader(bytes.NewReader(b), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, false
	}
	if !utf8.Valid(decoded) {
		return nil, false
	}
	return decoded, true
}
