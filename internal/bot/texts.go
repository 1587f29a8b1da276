package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tulikaff659/zolo/internal/assets"
	"github.com/tulikaff659/zolo/internal/services/broadcast"
	"github.com/tulikaff659/zolo/pkg/tgui"
)

const (
	textDenied       = "⛔ Bu buyruq faqat admin uchun!"
	textBusy         = "⏳ Bot band, birozdan so'ng qayta urinib ko'ring."
	textMissingFile  = "❌ APK fayl topilmadi"
	textUploadFirst  = "❌ APK yuklash uchun avval /upload buyrug'ini kiriting!"
	textNoSuchSlot   = "❌ Bunday tugma mavjud emas!"
	textFault        = "❌ Xatolik yuz berdi. Qaytadan urinib ko'ring."
	textAssetCaption = "✅ So'nggi versiya APK fayl"
	textAssetOn      = "✅ APK yuklab olish tugmasi yoqildi."
	textAssetOff     = "🚫 APK yuklab olish tugmasi o'chirildi."
	textAssetNoRef   = "ℹ️ Hali APK saqlanmagan. Avval /setapk buyrug'idan foydalaning."
)

func textStart(anything bool) tgui.H {
	head := tgui.B("📱 Yangilangan APK fayllar")
	if !anything {
		return head + "\n\n" + tgui.Esc("Hozircha hech qanday APK fayl mavjud emas. Tez orada qo'shiladi!")
	}
	return head + "\n\n" + tgui.Esc("Quyidagi tugmalardan birini tanlab, so'nggi versiya APK faylini yuklab oling:")
}

func textMissingSlotArg(cmd string) tgui.H {
	return tgui.Esc(fmt.Sprintf("❌ Tugma nomini kiriting!\nMasalan: /%s betwinner", cmd))
}

func textBadSlot() tgui.H {
	return tgui.Esc("❌ Noto'g'ri tugma nomi!\nMavjud tugmalar: " + assets.IDs())
}

func textSlotCaption(s assets.Slot) string {
	return fmt.Sprintf("✅ %s uchun so'nggi APK fayl", s.Name)
}

func textDeleted(s assets.Slot) tgui.H {
	return tgui.Sprintf("✅ %s uchun APK o'chirildi!", tgui.B(s.Name))
}

func textNothingToDelete(s assets.Slot) tgui.H {
	return tgui.Sprintf("ℹ️ %s uchun APK mavjud emas!", tgui.B(s.Name))
}

func textSlotList(st []assets.SlotStatus) tgui.H {
	lines := []tgui.H{tgui.B("📋 Tugmalar ro'yxati:"), ""}
	for _, s := range st {
		if s.Available {
			lines = append(lines, tgui.Sprintf("✅ %s - %s", s.Slot.Name, fmt.Sprintf("%.2f MB", float64(s.Size)/1024/1024)))
		} else {
			lines = append(lines, tgui.Sprintf("❌ %s - APK mavjud emas", s.Slot.Name))
		}
	}
	return joinLines(lines)
}

type helpEntry struct {
	usage, desc string
}

func textHelp(cmds []helpEntry, st []assets.SlotStatus) tgui.H {
	lines := []tgui.H{tgui.B("👨‍💻 Admin buyruqlari:"), ""}
	for _, c := range cmds {
		lines = append(lines, tgui.Sprintf("%s - %s", tgui.Code(c.usage), c.desc))
	}
	lines = append(lines, "", tgui.B("📱 Tugmalar:"))
	for _, s := range st {
		mark := "❌ APK mavjud emas"
		if s.Available {
			mark = "✅ APK mavjud"
		}
		lines = append(lines, tgui.Sprintf("• %s (%s) - %s", s.Slot.Name, tgui.Code(s.Slot.ID), mark))
	}
	return joinLines(lines)
}

func textUsers(users, sessions int, enabled, hasAsset bool, recent []broadcast.Report) tgui.H {
	asset := "❌ yo'q"
	switch {
	case hasAsset && enabled:
		asset = "✅ yoqilgan"
	case hasAsset:
		asset = "🚫 o'chirilgan"
	}
	lines := []tgui.H{
		tgui.Sprintf("👥 Foydalanuvchilar: %s", tgui.B(humanize.Comma(int64(users)))),
		tgui.Sprintf("💬 Faol dialoglar: %d", sessions),
		tgui.Sprintf("📥 APK tugmasi: %s", asset),
	}
	if len(recent) > 0 {
		lines = append(lines, "", tgui.B("📢 So'nggi yuborishlar:"))
		for _, r := range recent {
			at := r.QueuedAt
			if !r.StartedAt.IsZero() {
				at = r.StartedAt
			}
			status := fmt.Sprintf("✅ %d / ❌ %d (jami %d)", r.Sent, r.Failed, r.Total)
			if r.Running {
				status = fmt.Sprintf("⏳ %d/%d", r.Sent+r.Failed, r.Total)
			}
			lines = append(lines, tgui.Sprintf("• %s - %s", at.Format("02.01 15:04"), status))
		}
	}
	return joinLines(lines)
}

func textReport(r broadcast.Report) tgui.H {
	return joinLines([]tgui.H{
		tgui.B("✅ Xabar yuborish yakunlandi!"),
		"",
		tgui.Sprintf("📤 Yuborildi: %d", r.Sent),
		tgui.Sprintf("❌ Xatolik: %d", r.Failed),
		tgui.Sprintf("👥 Jami: %d", r.Total),
		tgui.Sprintf("⏱ %s", r.Duration().Round(100*time.Millisecond).String()),
	})
}

// joinLines keeps empty entries as blank lines, unlike tgui.Lines.
func joinLines(lines []tgui.H) tgui.H {
	ss := make([]string, len(lines))
	for i, l := range lines {
		ss[i] = l.String()
	}
	return tgui.H(strings.Join(ss, "\n"))
}
