package handler

import (
	"fmt"
	"reflect"
	"strings"

	"kama_social_client/internal/dto/request"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// Trans 全局翻译器，HandleParamError 用它翻译校验错误
var Trans ut.Translator

// 本地视图 API 的自定义校验标签
const (
	tagMessageContent = "message_content" // 文本、附件、GIF 至少一项
)

// customMessages 自定义标签的提示文案，按语言区分
var customMessages = map[string]map[string]string{
	"zh": {tagMessageContent: "消息内容不能为空"},
	"en": {tagMessageContent: "message must contain text, media or a gif"},
}

// InitTrans 初始化校验器与翻译器
// 1. 错误字段使用 json tag
// 2. 注册本地视图 API 的结构体级校验
// 3. 注册默认翻译与自定义标签的翻译，未知 locale 回退英文
func InitTrans(locale string) error {
	if binding.Validator == nil {
		binding.Validator = &defaultValidator{validator: validator.New()}
	}
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validatePostMessage, request.PostMessageRequest{})

	enT := en.New()
	uni := ut.New(enT, zh.New(), enT)
	if Trans, ok = uni.GetTranslator(locale); !ok {
		return fmt.Errorf("uni.GetTranslator(%s) failed", locale)
	}

	var err error
	messages := customMessages["en"]
	switch locale {
	case "zh":
		err = zh_translations.RegisterDefaultTranslations(v, Trans)
		messages = customMessages["zh"]
	default:
		err = en_translations.RegisterDefaultTranslations(v, Trans)
	}
	if err != nil {
		return err
	}
	for tag, text := range messages {
		if err := registerTranslation(v, tag, text); err != nil {
			return err
		}
	}
	return nil
}

// registerTranslation 为自定义标签注册固定文案
func registerTranslation(v *validator.Validate, tag, text string) error {
	return v.RegisterTranslation(tag, Trans,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(fe.Tag())
			if err != nil {
				return fe.Error()
			}
			return msg
		},
	)
}

// validatePostMessage 空消息报告在 text 字段上
func validatePostMessage(sl validator.StructLevel) {
	req := sl.Current().Interface().(request.PostMessageRequest)
	if req.Empty() {
		sl.ReportError(req.Text, "text", "Text", tagMessageContent, "")
	}
}

// RemoveTopStruct 去掉字段名中的结构体前缀，如 "PostMessageRequest.text" -> "text"
func RemoveTopStruct(fields map[string]string) map[string]string {
	res := make(map[string]string)
	for field, err := range fields {
		res[field[strings.Index(field, ".")+1:]] = err
	}
	return res
}

// defaultValidator binding.Validator 未初始化时的兜底实现
type defaultValidator struct {
	validator *validator.Validate
}

func (v *defaultValidator) ValidateStruct(obj any) error {
	return v.validator.Struct(obj)
}

func (v *defaultValidator) Engine() any {
	return v.validator
}
