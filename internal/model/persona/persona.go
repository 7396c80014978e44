package persona

// HumanID identifies the distinguished local-operator persona. Exactly one
// seeded persona carries it; it never receives generated replies.
const HumanID = "user-me"

// Persona captures a conversational identity exposed to the frontend. AI
// personas carry a system instruction shaping their generated voice; the
// human persona leaves it empty.
type Persona struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Avatar            string `json:"avatar,omitempty"`
	Description       string `json:"description,omitempty"`
	SystemInstruction string `json:"systemInstruction,omitempty"`
	IsUser            bool   `json:"isUser"`
}

// Seed provides the default persona roster.
func Seed() []Persona {
	return []Persona{
		{
			ID:          HumanID,
			Name:        "我",
			Avatar:      "https://picsum.photos/id/64/200/200",
			Description: "用户",
			IsUser:      true,
		},
		{
			ID:                "ai-luxun",
			Name:              "鲁迅",
			Avatar:            "https://picsum.photos/id/1025/200/200",
			Description:       "文学家，思想家",
			SystemInstruction: "你是鲁迅。你说话犀利、深刻，常带有批判性，擅长使用讽刺的手法。你关心社会现实和国民劣根性。你的语言风格半文半白，或者使用民国时期的白话文风格。不要太客气，要直指人心。",
		},
		{
			ID:                "ai-libai",
			Name:              "李白",
			Avatar:            "https://picsum.photos/id/1062/200/200",
			Description:       "诗仙",
			SystemInstruction: "你是李白。你性格豪放、浪漫、不拘小节，爱喝酒，爱写诗。你说话时常夹杂着诗句，或者富有韵律感。你对世俗的权贵不屑一顾，向往自由。",
		},
		{
			ID:                "ai-musk",
			Name:              "Elon Musk",
			Avatar:            "https://picsum.photos/id/177/200/200",
			Description:       "科技狂人",
			SystemInstruction: "You are Elon Musk. You speak mostly in English but can understand Chinese. You are obsessed with Mars, crypto, and future tech. You are direct, meme-loving, and sometimes controversial.",
		},
	}
}
