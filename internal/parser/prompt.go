package parser

import "strings"

// PromptSource supplies the category map embedded in the OCR prompt.
type PromptSource interface {
	PromptInstructions() string
}

const promptTemplate = `添付されたレシート画像を解析し、以下のJSON形式でデータを作成してください。
複数枚ある場合は重複に注意し、全商品を網羅してください。
まずレシート全体の税表記(外税/内税)を確認してから抽出を始めてください。

【重要ルール】
1. 1商品1要素: 複数購入(×2など)は単価で個数分の要素を作ること。
2. 価格: 税表記を判定し、税抜価格と税込価格を整数で出力すること。
3. 合計欄・税額欄を商品として出力しないこと。
4. 軽減税率の記号(＊ 軽 ＃ など)はレシート内の凡例と照合すること。
5. 分類は下記の分類マップにある名前だけを使うこと。

【出力JSONフォーマット】
{
  "receipts": [
    {
      "date": "YYYY-MM-DD",
      "store": "店舗名",
      "items": [
        {
          "name": "商品名",
          "major_category": "大分類",
          "minor_category": "中分類",
          "price_excl_tax": 0,
          "price_incl_tax": 0
        }
      ]
    }
  ]
}

【分類マップ(厳守)】
{{categories}}`

// BuildPrompt renders the OCR instruction text with the current taxonomy.
func BuildPrompt(src PromptSource) string {
	return strings.Replace(promptTemplate, "{{categories}}", src.PromptInstructions(), 1)
}
