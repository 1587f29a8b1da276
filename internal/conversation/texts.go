package conversation

import (
	"github.com/dustin/go-humanize"

	"github.com/tulikaff659/zolo/internal/assets"
	"github.com/tulikaff659/zolo/pkg/tgui"
)

const (
	textUnauthorized   = "⛔ Bu buyruq faqat admin uchun!"
	textFault          = "❌ Xatolik yuz berdi. Qaytadan urinib ko'ring yoki /cancel yuboring."
	textCancelled      = "❌ Amal bekor qilindi."
	textNothingActive  = "ℹ️ Hozir faol amal yo'q."
	textDiscarded      = "ℹ️ Oldingi tugallanmagan amal bekor qilindi."
	textNotDocument    = "❌ Iltimos, APK faylni hujjat (document) sifatida yuboring."
	textNotAPK         = "❌ Faqat .apk fayllar qabul qilinadi!"
	textNeedText       = "❌ Iltimos, matn yuboring."
	textInvalidURL     = "❌ Noto'g'ri havola! Havola http:// yoki https:// bilan boshlanishi kerak."
	textSkipNoAsset    = "❌ Saqlangan APK yo'q yoki o'chirilgan, shuning uchun \"skip\" ishlatib bo'lmaydi. Havola yuboring."
	textStaleChoice    = "ℹ️ Bu tugma endi faol emas."
	textChoicePrompt   = "Xabarga tugma qo'shilsinmi?"
	textChoiceAttach   = "➕ Tugma qo'shish"
	textChoiceNone     = "➡️ Tugmasiz yuborish"
	textLinkLabel      = "🔗 Tugma matnini yuboring.\n\n/cancel - bekor qilish"
	textLinkURL        = "🌐 Endi havolani yuboring (http:// yoki https://)."
	textBroadcastStart = "📢 Barcha foydalanuvchilarga yuboriladigan xabarni yuboring (matn, rasm, video yoki fayl).\n\n/cancel - bekor qilish"
	textButtonLabel    = "✏️ Tugma matnini yuboring."
	textButtonURL      = "🌐 Tugma havolasini yuboring (http:// yoki https://)."
	textButtonURLSkip  = "🌐 Tugma havolasini yuboring (http:// yoki https://).\nAPK yuklab olish tugmasi uchun \"skip\" yozing."
	textQueueBusy      = "❌ Yuborish navbati band. Birozdan so'ng qayta urinib ko'ring."
	textSetAssetPrompt = "📤 Yuklab olish tugmasi uchun APK faylni yuboring.\nFayl izohi (caption) tugma matni bo'ladi.\n\n/cancel - bekor qilish"
)

func textUploadPrompt(s assets.Slot) tgui.H {
	return tgui.Sprintf("📤 %s uchun APK faylni yuboring.\n\n/cancel - bekor qilish", tgui.B(s.Name))
}

func textTooLarge(limit int64) tgui.H {
	return tgui.Sprintf("❌ Fayl juda katta! Maksimal hajm: %s", humanize.IBytes(uint64(limit)))
}

func textSlotUploaded(s assets.Slot, size int64) tgui.H {
	return tgui.Sprintf("✅ %s uchun APK muvaffaqiyatli yuklandi! (%s)", tgui.B(s.Name), humanize.IBytes(uint64(size)))
}

func textAssetSaved(label string) tgui.H {
	return tgui.Sprintf("✅ APK saqlandi!\nTugma matni: %s", tgui.B(label))
}

func textLinkSaved(label, url string) tgui.H {
	return tgui.Sprintf("✅ Havola saqlandi: %s", tgui.Link(label, url))
}

func textDispatching(n int) tgui.H {
	return tgui.Sprintf("⏳ Xabar %d ta foydalanuvchiga yuborilmoqda...", n)
}
