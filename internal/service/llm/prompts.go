package llm

const intentSystemPrompt = "You are an expert medical call analyzer. Classify patient intents accurately and concisely."

const intentPromptTemplate = `Analyze the following medical call transcript and classify the caller's intent.

Transcript: %q

Classify into one of these categories:
- appointment: Caller wants to schedule, reschedule, or cancel an appointment
- prescription: Caller needs prescription refill, medication questions, or pharmacy
- general_inquiry: General questions about the clinic or services
- emergency: Medical emergencies or urgent situations
- find_doctor: Request to find a doctor, specialist, or hospital nearby
- unknown: The intent is not clear or doesn't fit other categories

Respond in JSON format with: {"intent": "category", "confidence": 0-100, "reasoning": "brief explanation"}`

const emergencySystemPrompt = "You are a medical triage expert. Assess emergency severity accurately to prioritize patient care."

const emergencyPromptTemplate = `Analyze this medical call transcript for emergency indicators:

Transcript: %q

Detect emergency severity based on:
- critical: Life-threatening (chest pain, stroke, severe bleeding, difficulty breathing)
- high: Urgent but not immediately life-threatening (high fever, severe pain, mental health crisis)
- medium: Concerning symptoms requiring prompt attention
- low: Minor concern, could wait
- none: No emergency indicators

Respond in JSON format with: {"isEmergency": boolean, "severity": "level", "keywords": ["key1", "key2"], "reasoning": "explanation"}`

const replySystemPrompt = "You are a compassionate medical call center AI assistant speaking to a caller on the phone. Provide helpful, professional responses."

const replyPromptTemplate = `Generate a professional, empathetic spoken response for a medical call AI agent.

Call Transcript: %q
Detected Intent: %s
Emergency: %s
Caller locale: %s
%s
Guidelines:
- Be empathetic and professional
- Keep the response under 60 words; it will be read aloud
- Respond in the caller's language
- For emergencies: acknowledge urgency and advise calling local emergency services if critical
- For appointments: offer to schedule or check availability
- For prescriptions: acknowledge the request and mention pharmacy coordination
- For finding a doctor: use the provider information below if present
- For inquiries: provide helpful guidance or offer to connect with medical staff
- Plain text only, no markdown or lists

Generate the AI agent's response:`
