package pipeline

// 원격 서비스 응답의 output 형태가 서비스/버전마다 달라서
// 추출 전략을 순서대로 시도한다. 새 응답 형태가 생기면 여기에 추가.

// extractFunc - output 맵에서 결과물 URL 추출 시도 (실패 시 빈 문자열)
type extractFunc func(output map[string]interface{}) string

// outputExtractors - 순서대로 시도되는 추출 전략 목록
var outputExtractors = []extractFunc{
	flatString("model"),
	nestedURL("model"),
	flatString("result"),
	nestedURL("result"),
}

// ExtractOutputURL - 첫 번째로 성공하는 전략의 결과 반환, 모두 실패하면 빈 문자열
func ExtractOutputURL(output map[string]interface{}) string {
	if output == nil {
		return ""
	}

	for _, extract := range outputExtractors {
		if url := extract(output); url != "" {
			return url
		}
	}

	return ""
}

// flatString - output[key]가 평문 URL 문자열인 형태
func flatString(key string) extractFunc {
	return func(output map[string]interface{}) string {
		if s, ok := output[key].(string); ok {
			return s
		}
		return ""
	}
}

// nestedURL - output[key]가 {url: "..."} 객체인 형태
func nestedURL(key string) extractFunc {
	return func(output map[string]interface{}) string {
		obj, ok := output[key].(map[string]interface{})
		if !ok {
			return ""
		}
		if s, ok := obj["url"].(string); ok {
			return s
		}
		return ""
	}
}
