package bot

import (
	"strconv"

	"animefinder/internal/catalog"
	"animefinder/internal/publish"
	"animefinder/pkg/tgui"
)

// maxQueryEcho caps how much of a query is quoted back in replies.
const maxQueryEcho = 200

// Callback data and button labels.
const (
	CallbackAddAnime = "add_anime_start"

	btnAddAnime = "➕ Add New Anime"
	btnOpenLink = "🔗 Open Anime Link"
)

// Templates use Telegram HTML; {placeholders} are filled with tgui.Fill,
// which escapes user-supplied values.
const (
	tmplAdminStart = tgui.H("👋 <b>Hello Admin!</b> Aap naye anime add kar sakte hain ya stats check kar sakte hain.")

	tmplPromptName = tgui.H("✅ Great! Ab naye <b>Anime ka Poora Naam</b> enter karein.")
	tmplPromptLink = tgui.H("🔗 Ab is anime ko dekhne ka <b>Link (URL)</b> enter karein.")

	tmplFinalInstruction = tgui.H("🚀 <b>Final Step:</b>\n\n" +
		"1. <b>ID Copy Karo:</b> <code>{token}</code>\n" +
		"2. Is ID ko apne Channel post ke <b>Title</b> (Caption) mein daalo.\n" +
		"3. Post ko <b>Anime Channel</b> mein bhej do.\n\n" +
		"Bot khud channel monitor karke is post ko record kar lega.")

	tmplSuccess = tgui.H("🥳 <b>Anime Successfully Added!</b> <b>{name}</b> database mein save ho gaya hai. Ab sab users ko broadcast bheja jayega.")
	tmplFail    = tgui.H("❌ <b>Error!</b> Process fail ho gaya. Temp ID: <code>{token}</code>.")

	tmplWelcome = tgui.H("👋 <b>Welcome!</b> Main aapka Anime Finder Bot hoon.\n\n" +
		"Mujhe bas us <b>anime ka naam</b> batao jo aap dhoondh rahe ho. Agar spelling mistake bhi hui toh main samajh jaunga!\n\n" +
		"Example: <code>Naruto</code>, <code>One Piece</code>")

	tmplNotFound      = tgui.H("😔 Sorry, mujhe <code>{query}</code> naam ka koi anime nahi mila. Kripya naam dobara check karein.")
	tmplBroadcast     = tgui.H("🥳 <b>NEW ANIME ALERT!</b> 🥳\n\nEk fresh anime abhi-abhi channel par upload hua hai: <b>{name}</b>!")
	tmplCatalogEmpty  = tgui.H("Database mein koi anime nahi hai. Admin ko bolen add karein.")
	tmplNameRequired  = tgui.H("⚠️ Naam khali nahi ho sakta. Anime ka poora naam bhejein.")
	tmplCancelled     = tgui.H("🛑 Add-flow cancel kar diya gaya.")
	tmplNothingActive = tgui.H("Koi add-flow chal nahi raha.")
	tmplDiscarded     = tgui.H("🗑 Pending record <code>{token}</code> hata diya gaya.")
	tmplNotPending    = tgui.H("<code>{token}</code> ka koi pending record nahi hai.")
	tmplDiscardUsage  = tgui.H("Usage: <code>/discard ANIME-XXXXXX</code>")
	tmplGenericError  = tgui.H("⚠️ Kuch gadbad ho gayi. Thodi der baad dobara try karein.")
	tmplBusy          = tgui.H("⏳ Bot abhi busy hai, thodi der baad try karein.")
)

// NotAdminAlert is the callback alert shown to non-admins.
const NotAdminAlert = "Aap Admin nahi hain."

// BroadcastCaption renders the caption attached to announced posts.
func BroadcastCaption(name string) string {
	return tgui.Fill(tmplBroadcast, "name", name).String()
}

func adminStartMessage() tgui.Message {
	return tgui.New().
		HTML(tmplAdminStart).
		Inline(tgui.NewInline().Row(tgui.Btn(btnAddAnime, CallbackAddAnime))).
		Build()
}

func htmlMessage(h tgui.H) tgui.Message { return tgui.New().HTML(h).Build() }

func finalInstruction(token string) tgui.Message {
	return htmlMessage(tgui.Fill(tmplFinalInstruction, "token", publish.Delimited(token)))
}

func statsMessage(st catalog.Stats, sent, failed uint64, inFlight int64) tgui.Message {
	return tgui.New().
		Title("📊", "Catalog Stats").
		KV("Published", strconv.Itoa(st.Published)).
		KV("Pending", strconv.Itoa(st.Pending)).
		KV("Users", strconv.Itoa(st.Users)).
		Blank().
		KV("Broadcast sent", strconv.FormatUint(sent, 10)).
		KV("Broadcast failed", strconv.FormatUint(failed, 10)).
		KV("Deletions pending", strconv.FormatInt(inFlight, 10)).
		Build()
}
