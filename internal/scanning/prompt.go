package scanning

// receiptScanPrompt is shared by all providers. The JSON layout it asks
// for is the canonical document schema the validator expects.
const receiptScanPrompt = `You are analyzing a photographed or scanned purchase receipt. Read every line of text carefully and extract the complete receipt into JSON following this exact schema:

{
  "metadata": {
    "store": string,            // Merchant name as printed, usually at the top
    "address": string | null,
    "phone": string | null,
    "receipt_number": string | null,
    "date": string,             // As printed, e.g. "11/23/2024"
    "time": string | null       // As printed, e.g. "2:35 PM"
  },
  "items": [{
    "brand": string | null,     // Full brand name, never abbreviated
    "product": string,          // Full product name, never abbreviated
    "product_type": string,     // Generic type (e.g. toilet paper, asparagus, salmon)
    "category": string,         // One of: Produce, Bakery, Household, Meat, Seafood, Grocery, Miscellaneous
    "quantity": number | null,  // For unit-priced items
    "weight": number | null,    // For weighed items, in pounds
    "unit": "pounds" | "each",
    "unit_price": number,
    "total_price": number,
    "is_organic": boolean,
    "savings": number | null
  }],
  "totals": {
    "subtotal": number,
    "total_savings": number | null,
    "net_sales": number | null,
    "bag_fee": number | null,
    "tax": [{ "rate": number, "amount": number }],
    "total": number
  },
  "payment": {
    "method": string | null,
    "card_last_four": string | null,
    "amount": number | null
  },
  "promotions": [{ "description": string, "savings": number }]
}

Rules:
1. Expand all abbreviations ("FCL TSSUE" means "Facial Tissue", "SDROGH" means "Sourdough", "OG" means "Organic", "365WFM" means "365 Whole Foods Market").
2. Include every single item, watching for items that span multiple lines.
3. For weighed items set weight in pounds and leave quantity null; for unit items set quantity and leave weight null.
4. Copy prices exactly as printed. Do not recompute or "fix" totals.
5. Return ONLY the JSON object, with no text before or after it and no markdown code blocks.`
