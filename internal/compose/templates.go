package compose

import "math/rand"

// Variant is one rotating copy block for standard-mode messages. Rotating the
// wording keeps repeated posts in the same chat from looking machine-stamped.
type Variant struct {
	Header string
	Body   string
	CTA    string
}

var variants = []Variant{
	{"🚨 *OFERTA RELÂMPAGO!* 🚨", "Encontramos um preço absurdo para este item! O estoque está voando. 💨", "APROVEITE AGORA"},
	{"⭐ *ACHADINHO DE OURO!* ⭐", "Um dos itens mais amados com um desconto especial hoje. Vale cada centavo! 💸", "VER NA LOJA"},
	{"💰 *OPORTUNIDADE ÚNICA!* 💰", "Nosso sistema detectou o menor preço dos últimos dias neste produto! 📉", "PEGAR DESCONTO"},
	{"💎 *QUALIDADE PREMIUM* 💎", "Esse produto é um dos mais bem avaliados da categoria. Preço baixo e muita qualidade! ✨", "EU QUERO"},
	{"🎁 *ACHADINHO ÚTIL* 🎁", "Olha o que eu acabei de encontrar! Às vezes a gente nem sabe que precisa, até ver o preço. 👀", "CONFERIR"},
	{"🔥 *PREÇO DE ATACADO* 🔥", "Desconto agressivo liberado para este item agora. É a hora de garantir o seu! ⚡", "APROVEITAR"},
	{"👀 *VOCÊ VIU ISSO?* 👀", "Estava navegando e esse desconto saltou na tela. É o melhor custo-benefício do dia! 😱", "EU QUERO"},
	{"🛑 *PARE TUDO E OLHA ISSO* 🛑", "Se você estava esperando um sinal para comprar, o sinal é esse preço baixo! 👇", "VER PROMOÇÃO"},
	{"💸 *ECONOMIA REAL* 💸", "A diferença de preço para as outras lojas é bizarra. Vale muito a pena conferir! 😲", "PEGAR OFERTA"},
	{"⚡ *FLASH DEAL* ⚡", "O preço deste item acabou de despencar. É agora ou nunca! 🏹", "COMPRAR AGORA"},
	{"📉 *QUEDA DE PREÇO* 📉", "Alerta de baixa de preço! O valor despencou e nós te avisamos primeiro. 🔔", "VER DESCONTO"},
	{"🏃‍♂️ *CORRE QUE DÁ TEMPO* 🏃‍♂️", "Promoções assim duram poucos minutos. Se eu fosse você, não deixava passar! ⏳", "QUERO COMPRAR"},
}

// PickVariant draws one copy variant. The caller owns the RNG so message
// composition itself stays deterministic.
func PickVariant(rng *rand.Rand) Variant {
	return variants[rng.Intn(len(variants))]
}
