package templates

import "github.com/shohag/aptnotify/internal/models"

var catalog = map[models.TemplateType]string{
	models.TemplateGeneral: "Sayın {residentName}, {apartmentNo} numaralı daire için site yönetiminden bir duyuru var. Tarih: {date}",
	models.TemplateDuesReminder: "Sayın {residentName}, {apartmentNo} numaralı dairenizin {month} ayı aidatı ({amount} TL) henüz ödenmemiştir. " +
		"Ödemenizi en kısa sürede yapmanızı rica ederiz.",
	models.TemplateMeeting:     "Sayın {residentName}, {date} tarihinde yapılacak kat malikleri toplantısına davetlisiniz.",
	models.TemplateMaintenance: "Sayın {residentName}, {date} tarihinde binamızda planlı bakım çalışması yapılacaktır. Anlayışınız için teşekkür ederiz.",
}

// Lookup returns the fixed template for t. Custom messages have no catalog entry.
func Lookup(t models.TemplateType) (string, bool) {
	tpl, ok := catalog[t]
	return tpl, ok
}

// Valid reports whether t is a known template type, including custom.
func Valid(t models.TemplateType) bool {
	if t == models.TemplateCustom {
		return true
	}
	_, ok := catalog[t]
	return ok
}

// Resolve picks the message body: the supplied text for custom messages, the
// catalog entry otherwise. A non-empty message always overrides the catalog.
func Resolve(t models.TemplateType, message string) (string, bool) {
	if message != "" {
		return message, Valid(t)
	}
	return Lookup(t)
}
