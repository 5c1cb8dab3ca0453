package ticket

import "errors"

// Ticket ドメインのエラー定義
var (
	ErrTicketNotFound       = errors.New("チケットが見つかりません")
	ErrNotAvailable         = errors.New("チケットは予約できません")
	ErrLockConflict         = errors.New("チケットのロックが競合しました")
	ErrTicketNotReserved    = errors.New("チケットは予約されていません")
	ErrTicketNotSold        = errors.New("チケットは販売済みではありません")
	ErrTicketNotLocked      = errors.New("チケットはこのトランザクションでロックされていません")
	ErrSeatTaken            = errors.New("座席は既に割り当てられています")
	ErrSeatAlreadyAssigned  = errors.New("チケットには既に座席が割り当てられています")
	ErrSeatRequired         = errors.New("列と座席番号は必須です")
	ErrSerialNumberRequired = errors.New("シリアル番号は必須です")
	ErrCategoryIDRequired   = errors.New("カテゴリIDは必須です")
	ErrInvalidPrice         = errors.New("価格は0以上である必要があります")
)
