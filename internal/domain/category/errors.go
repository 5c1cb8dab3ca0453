package category

import "errors"

// Category ドメインのエラー定義
var (
	ErrCategoryNotFound = errors.New("カテゴリが見つかりません")
	ErrCategoryInactive = errors.New("カテゴリは販売期間外です")
	ErrAreaMismatch     = errors.New("エリアがカテゴリと一致しません")
	ErrAreaRequired     = errors.New("エリアは必須です")
	ErrInvalidPrice     = errors.New("価格は0以上である必要があります")
	ErrInvalidPeriod    = errors.New("終了日時は開始日時より後である必要があります")
)
